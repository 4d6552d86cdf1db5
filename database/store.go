package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amlguard/compliance-api/model"
	"github.com/google/uuid"
)

// Sentinel errors for explicit error handling. Callers distinguish failure
// modes with errors.Is() instead of string matching; the HTTP layer maps
// them to stable status codes.
var (
	// ErrValidation indicates a bad input shape or value
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the id/owner/tenant does not resolve
	ErrNotFound = errors.New("record not found")

	// ErrNotAuthorized indicates the caller does not own the resource
	ErrNotAuthorized = errors.New("caller does not own this resource")

	// ErrConflict indicates a uniqueness violation (e.g. digest collision)
	ErrConflict = errors.New("conflicting record exists")
)

// KeyUpdate is the patch applied by UpdateKey. Nil fields are left unchanged.
type KeyUpdate struct {
	Name               *string
	IsActive           *bool
	RateLimitPerMinute *int
}

// KeyStore is the persistence boundary for API key records. Two adapters
// implement it (GORM/Postgres and in-memory); both must pass the shared
// conformance suite so behavior never diverges between them.
type KeyStore interface {
	// CreateKey persists a new key. Fails with ErrValidation on an empty
	// name and ErrConflict on a digest collision. The write is durable
	// before the call returns.
	CreateKey(ctx context.Context, key *model.APIKey) error

	// GetKey looks up a key by id, ErrNotFound when absent.
	GetKey(ctx context.Context, id uuid.UUID) (*model.APIKey, error)

	// GetKeyByDigest looks up a key by its secret digest, ErrNotFound when
	// absent. Used by the authorization path.
	GetKeyByDigest(ctx context.Context, digest string) (*model.APIKey, error)

	// ListKeysByOwner returns the owner's keys, creation-time descending.
	ListKeysByOwner(ctx context.Context, ownerID uint) ([]model.APIKey, error)

	// UpdateKey applies a metadata patch. ErrNotFound when the id does not
	// resolve, ErrNotAuthorized when ownerID does not match the stored
	// owner (the record is left unchanged).
	UpdateKey(ctx context.Context, id uuid.UUID, ownerID uint, patch KeyUpdate) error

	// RotateKey atomically replaces digest and preview in a single row
	// write and resets last_used_at to null. The old digest stops
	// authorizing the moment the call returns. Same ownership semantics
	// as UpdateKey; ErrConflict if the new digest already exists.
	RotateKey(ctx context.Context, id uuid.UUID, ownerID uint, digest, preview string) error

	// DeleteKey removes the key and cascades its usage events.
	// Same ownership semantics as UpdateKey. Terminal.
	DeleteKey(ctx context.Context, id uuid.UUID, ownerID uint) error
}

// UsageStore is the persistence boundary for usage events
type UsageStore interface {
	// InsertEvent appends one immutable usage event
	InsertEvent(ctx context.Context, event *model.UsageEvent) error

	// TouchLastUsed advances the key's last_used_at to ts, but only if ts
	// is greater than the stored value, so the timestamp never moves
	// backward under reordered writes.
	TouchLastUsed(ctx context.Context, keyID uuid.UUID, ts time.Time) error

	// EventsSince returns all events for the given keys with
	// timestamp >= since
	EventsSince(ctx context.Context, keyIDs []uuid.UUID, since time.Time) ([]model.UsageEvent, error)

	// EventsBefore returns up to limit events older than cutoff,
	// oldest first (retention/archival path)
	EventsBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.UsageEvent, error)

	// PruneEvents deletes the given events by id and returns the number
	// removed. Retention prunes exactly the events it archived, so events
	// sharing a boundary timestamp but not yet exported survive.
	PruneEvents(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// ProfileStore resolves owner profiles (tenant lookup at key creation)
type ProfileStore interface {
	GetUser(ctx context.Context, id uint) (*model.User, error)
}

// Store is the full persistence surface the services are wired against
type Store interface {
	KeyStore
	UsageStore
	ProfileStore
}

// ValidateKeyUpdate enforces patch invariants shared by every adapter
func ValidateKeyUpdate(patch KeyUpdate) error {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return fmt.Errorf("%w: key name must not be empty", ErrValidation)
	}
	if patch.RateLimitPerMinute != nil && *patch.RateLimitPerMinute <= 0 {
		return fmt.Errorf("%w: rate limit must be a positive integer", ErrValidation)
	}
	return nil
}

// ValidateNewKey enforces record-shape invariants shared by every adapter,
// so validation policy lives in the interface layer rather than per-adapter.
func ValidateNewKey(key *model.APIKey) error {
	if strings.TrimSpace(key.Name) == "" {
		return fmt.Errorf("%w: key name must not be empty", ErrValidation)
	}
	if key.SecretDigest == "" || key.Preview == "" {
		return fmt.Errorf("%w: key record is missing digest or preview", ErrValidation)
	}
	if key.RateLimitPerMinute <= 0 {
		return fmt.Errorf("%w: rate limit must be a positive integer", ErrValidation)
	}
	return nil
}
