package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amlguard/compliance-api/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore is the canonical SQL adapter backed by PostgreSQL
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a new GORM-backed store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// CreateKey persists a new API key record
func (s *GormStore) CreateKey(ctx context.Context, key *model.APIKey) error {
	if err := ValidateNewKey(key); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: digest already exists", ErrConflict)
		}
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// GetKey retrieves a key by id
func (s *GormStore) GetKey(ctx context.Context, id uuid.UUID) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: API key %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return &key, nil
}

// GetKeyByDigest retrieves a key by its secret digest
func (s *GormStore) GetKeyByDigest(ctx context.Context, digest string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.WithContext(ctx).
		Where("secret_digest = ?", digest).
		First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no key for presented secret", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}
	return &key, nil
}

// ListKeysByOwner returns all keys for an owner, newest first
func (s *GormStore) ListKeysByOwner(ctx context.Context, ownerID uint) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// checkOwnership loads the key and verifies the caller owns it
func (s *GormStore) checkOwnership(ctx context.Context, id uuid.UUID, ownerID uint) (*model.APIKey, error) {
	key, err := s.GetKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if key.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: API key %s", ErrNotAuthorized, id)
	}
	return key, nil
}

// UpdateKey applies a metadata patch with ownership enforcement
func (s *GormStore) UpdateKey(ctx context.Context, id uuid.UUID, ownerID uint, patch KeyUpdate) error {
	if err := ValidateKeyUpdate(patch); err != nil {
		return err
	}
	if _, err := s.checkOwnership(ctx, id, ownerID); err != nil {
		return err
	}

	updates := make(map[string]interface{})
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.IsActive != nil {
		updates["is_active"] = *patch.IsActive
	}
	if patch.RateLimitPerMinute != nil {
		updates["rate_limit_per_minute"] = *patch.RateLimitPerMinute
	}
	if len(updates) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&model.APIKey{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update API key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: API key %s", ErrNotFound, id)
	}

	return nil
}

// RotateKey swaps digest and preview in one row update and resets last_used_at.
// A reader never observes the new digest without its matching preview.
func (s *GormStore) RotateKey(ctx context.Context, id uuid.UUID, ownerID uint, digest, preview string) error {
	if _, err := s.checkOwnership(ctx, id, ownerID); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Model(&model.APIKey{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]interface{}{
			"secret_digest": digest,
			"preview":       preview,
			"last_used_at":  nil,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: digest already exists", ErrConflict)
		}
		return fmt.Errorf("failed to rotate API key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: API key %s", ErrNotFound, id)
	}

	return nil
}

// DeleteKey removes the key and cascade-deletes its usage events. The
// explicit event delete runs in the same transaction as the key delete so
// the cascade does not depend on the FK constraint being migrated.
func (s *GormStore) DeleteKey(ctx context.Context, id uuid.UUID, ownerID uint) error {
	if _, err := s.checkOwnership(ctx, id, ownerID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("api_key_id = ?", id).
			Delete(&model.UsageEvent{}).Error; err != nil {
			return fmt.Errorf("failed to delete usage events: %w", err)
		}

		result := tx.Where("id = ? AND owner_id = ?", id, ownerID).
			Delete(&model.APIKey{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete API key: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: API key %s", ErrNotFound, id)
		}
		return nil
	})
}

// InsertEvent appends one usage event
func (s *GormStore) InsertEvent(ctx context.Context, event *model.UsageEvent) error {
	if event.APIKeyID == uuid.Nil {
		return fmt.Errorf("%w: usage event requires an api key id", ErrValidation)
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert usage event: %w", err)
	}
	return nil
}

// TouchLastUsed advances last_used_at, never moving it backward
func (s *GormStore) TouchLastUsed(ctx context.Context, keyID uuid.UUID, ts time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&model.APIKey{}).
		Where("id = ? AND (last_used_at IS NULL OR last_used_at < ?)", keyID, ts).
		Update("last_used_at", ts)
	if result.Error != nil {
		return fmt.Errorf("failed to update last_used_at: %w", result.Error)
	}
	return nil
}

// EventsSince returns events for the given keys from since onwards
func (s *GormStore) EventsSince(ctx context.Context, keyIDs []uuid.UUID, since time.Time) ([]model.UsageEvent, error) {
	if len(keyIDs) == 0 {
		return nil, nil
	}

	var events []model.UsageEvent
	if err := s.db.WithContext(ctx).
		Where("api_key_id IN ? AND timestamp >= ?", keyIDs, since).
		Order("timestamp ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to query usage events: %w", err)
	}
	return events, nil
}

// EventsBefore returns up to limit events older than cutoff, oldest first
func (s *GormStore) EventsBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.UsageEvent, error) {
	var events []model.UsageEvent
	q := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Order("timestamp ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to query usage events: %w", err)
	}
	return events, nil
}

// PruneEvents deletes the given events by id
func (s *GormStore) PruneEvents(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&model.UsageEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune usage events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetUser resolves an owner profile by id
func (s *GormStore) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
