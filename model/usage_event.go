package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageEvent records one API call made with a given key. Events are
// append-only: they are never updated or deleted individually. Bulk
// retention pruning is handled by the nightly cron job after archival.
type UsageEvent struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	APIKeyID       uuid.UUID `gorm:"type:uuid;not null;index" json:"api_key_id"`
	Endpoint       string    `gorm:"not null;type:varchar(255)" json:"endpoint"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
	ResponseTimeMs *int      `json:"response_time_ms"`
	StatusCode     *int      `json:"status_code"`
	CallerIP       *string   `gorm:"type:varchar(45)" json:"caller_ip"` // IPv4/IPv6

	// Relationships
	APIKey APIKey `gorm:"foreignKey:APIKeyID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for UsageEvent
func (UsageEvent) TableName() string {
	return "api_key_usage_events"
}

// BeforeCreate assigns the record id and timestamp
func (e *UsageEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return nil
}

// IsSuccess reports whether the recorded call completed with a 2xx status.
// Events without a status code count as non-success.
func (e *UsageEvent) IsSuccess() bool {
	return e.StatusCode != nil && *e.StatusCode >= 200 && *e.StatusCode < 300
}
