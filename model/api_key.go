package model

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// SecretPrefix is the recognizable prefix carried by every issued secret
	SecretPrefix = "ak_"

	// secretEntropyBytes is the random entropy per secret (128 bits)
	secretEntropyBytes = 16

	// previewLeadChars / previewTailChars define the canonical 8+4 masking
	previewLeadChars = 8
	previewTailChars = 4
)

// APIKey represents one issued partner credential.
// The plaintext secret is never stored; only a SHA-256 digest and a masked
// preview are persisted. The digest is unique so a presented secret can be
// looked up directly during authorization.
type APIKey struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID      uint      `gorm:"not null;index" json:"owner_id"`
	PartnerID    string    `gorm:"not null;type:varchar(64);index" json:"partner_id"`
	Name         string    `gorm:"not null;type:varchar(100)" json:"name"`
	SecretDigest string    `gorm:"not null;uniqueIndex;type:varchar(64)" json:"-"` // SHA-256 hex, never expose
	Preview      string    `gorm:"not null;type:varchar(20)" json:"preview"`       // ak_XXXXXXXX...YYYY

	IsActive           bool       `gorm:"default:true;index" json:"is_active"`
	RateLimitPerMinute int        `gorm:"default:100" json:"rate_limit_per_minute"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastUsedAt         *time.Time `json:"last_used_at"`
	ExpiresAt          *time.Time `gorm:"index" json:"expires_at"`

	// Relationships
	Owner User `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`

	// Transient field - only populated when the secret is first issued
	// (create or rotate). Never stored, never returned on later reads.
	PlainSecret string `gorm:"-" json:"secret,omitempty"`
}

// TableName specifies the table name for APIKey
func (APIKey) TableName() string {
	return "api_keys"
}

// BeforeCreate assigns the record id
func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	return nil
}

// GenerateAPIKey produces a new plaintext secret: ak_<32 lowercase hex chars>.
// The 16 random bytes come from crypto/rand, so two calls collide only with
// negligible probability.
func GenerateAPIKey() (string, error) {
	randomBytes := make([]byte, secretEntropyBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(randomBytes), nil
}

// HashAPIKey creates the SHA-256 hex digest of a plaintext secret.
// Secrets are machine-generated with 128 bits of entropy, so a fast hash is
// sufficient here; a slow password hash would only matter for low-entropy
// secrets, which this service never issues.
func HashAPIKey(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}

// PreviewAPIKey derives the display-safe form of a secret: the prefix plus
// the first 8 chars stay visible, the middle is redacted, the last 4 chars
// remain for recognition. Deterministic for a given input.
func PreviewAPIKey(secret string) string {
	lead := len(SecretPrefix) + previewLeadChars
	if len(secret) < lead+previewTailChars {
		// Too short to mask meaningfully; never echo the input back
		return SecretPrefix + "..."
	}
	return secret[:lead] + "..." + secret[len(secret)-previewTailChars:]
}

// IsExpired checks if the key has passed its optional expiry
func (k *APIKey) IsExpired() bool {
	if k.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*k.ExpiresAt)
}

// CanAuthorize reports whether the key may authenticate a request.
// An inactive or expired key never authorizes, regardless of digest match.
func (k *APIKey) CanAuthorize() bool {
	return k.IsActive && !k.IsExpired()
}
