package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audit actions recorded for API key lifecycle changes
const (
	AuditActionKeyCreated     = "api_key_created"
	AuditActionKeyRotated     = "api_key_rotated"
	AuditActionKeyRenamed     = "api_key_renamed"
	AuditActionKeyActivated   = "api_key_activated"
	AuditActionKeyDeactivated = "api_key_deactivated"
	AuditActionRateLimitSet   = "api_key_rate_limit_changed"
	AuditActionKeyDeleted     = "api_key_deleted"
)

// AuditLog is the compliance audit trail for API key lifecycle actions.
// Detail holds structured context (old/new values) and must never contain
// a plaintext secret or a digest.
type AuditLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ActorID   uint           `gorm:"not null;index" json:"actor_id"`
	Action    string         `gorm:"type:varchar(100);not null;index" json:"action"`
	APIKeyID  uuid.UUID      `gorm:"type:uuid;index" json:"api_key_id"`
	Detail    datatypes.JSON `gorm:"type:jsonb" json:"detail,omitempty"`
	IPAddress string         `gorm:"type:varchar(45)" json:"ip_address"`
	CreatedAt time.Time      `json:"created_at"`

	// Relationships
	Actor User `gorm:"foreignKey:ActorID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}
