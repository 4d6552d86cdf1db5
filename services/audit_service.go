package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/amlguard/compliance-api/model"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditService writes the compliance audit trail for API key lifecycle
// actions. Audit writes are best-effort: a failure is logged and never
// surfaced to the request that triggered it. Detail maps must never
// contain plaintext secrets or digests.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService creates a new audit service
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Record appends one audit log entry
func (s *AuditService) Record(ctx context.Context, actorID uint, action string, keyID uuid.UUID, detail map[string]interface{}, ip string) {
	if s == nil || s.db == nil {
		return
	}

	entry := &model.AuditLog{
		ActorID:   actorID,
		Action:    action,
		APIKeyID:  keyID,
		IPAddress: ip,
	}

	if len(detail) > 0 {
		detailJSON, err := json.Marshal(detail)
		if err != nil {
			log.Printf("failed to marshal audit detail for %s: %v", action, err)
		} else {
			entry.Detail = datatypes.JSON(detailJSON)
		}
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		log.Printf("failed to write audit log for %s: %v", action, err)
	}
}
