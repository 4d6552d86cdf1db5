package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents a compliance staff account that can own API keys
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"` // Never expose password in JSON
	Name         string         `gorm:"not null" json:"name"`
	Role         string         `gorm:"type:varchar(20);default:'analyst'" json:"role"` // analyst, admin

	// PartnerID scopes API key usage and billing across the partner boundary.
	// Assigned once at registration, immutable afterwards.
	PartnerID string `gorm:"not null;type:varchar(64);index" json:"partner_id"`

	// Relationships
	APIKeys   []APIKey   `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
	AuditLogs []AuditLog `gorm:"foreignKey:ActorID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}
