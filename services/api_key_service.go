package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amlguard/compliance-api/database"
	"github.com/amlguard/compliance-api/model"
	"github.com/google/uuid"
)

const (
	// DefaultRateLimitPerMinute is applied when a create request omits the limit
	DefaultRateLimitPerMinute = 100

	// maxGenerateAttempts bounds digest-collision retries. A collision is
	// astronomically unlikely at 128 bits of entropy, so hitting the bound
	// means something is broken, not unlucky.
	maxGenerateAttempts = 3
)

// APIKeyService orchestrates the key lifecycle: create, rotate, metadata
// mutations, delete and authorization. The plaintext secret leaves this
// service exactly once, on the Create or Rotate return value.
type APIKeyService struct {
	store database.Store
}

// NewAPIKeyService creates a new API key lifecycle service
func NewAPIKeyService(store database.Store) *APIKeyService {
	return &APIKeyService{store: store}
}

// CreateKey issues a new API key for an owner. The partner (tenant) id is
// resolved from the owner profile and the call hard-fails when it does not
// resolve; fabricating a tenant would break usage-scoping invariants.
// The returned record carries the plaintext secret in PlainSecret - the
// only time it is ever disclosed.
func (s *APIKeyService) CreateKey(ctx context.Context, ownerID uint, name string, rateLimit int, expiresAt *time.Time) (*model.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: key name is required", database.ErrValidation)
	}
	if rateLimit == 0 {
		rateLimit = DefaultRateLimitPerMinute
	}
	if rateLimit < 0 {
		return nil, fmt.Errorf("%w: rate limit must be a positive integer", database.ErrValidation)
	}
	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", database.ErrValidation)
	}

	owner, err := s.store.GetUser(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve owner profile: %w", err)
	}
	if owner.PartnerID == "" {
		return nil, fmt.Errorf("%w: owner %d has no partner id", database.ErrNotFound, ownerID)
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		secret, err := model.GenerateAPIKey()
		if err != nil {
			return nil, err
		}

		key := &model.APIKey{
			ID:                 uuid.New(),
			OwnerID:            ownerID,
			PartnerID:          owner.PartnerID,
			Name:               name,
			SecretDigest:       model.HashAPIKey(secret),
			Preview:            model.PreviewAPIKey(secret),
			IsActive:           true,
			RateLimitPerMinute: rateLimit,
			ExpiresAt:          expiresAt,
		}

		if err := s.store.CreateKey(ctx, key); err != nil {
			if errors.Is(err, database.ErrConflict) {
				// Digest collision: retry with a fresh secret
				continue
			}
			return nil, err
		}

		key.PlainSecret = secret
		return key, nil
	}

	return nil, fmt.Errorf("%w: could not generate a unique secret", database.ErrConflict)
}

// maskOwnership translates a foreign-ownership failure into not-found.
// Every owner-scoped operation reports a key it does not own the same way
// it reports a key that does not exist, so key ids cannot be probed across
// owners through any operation.
func maskOwnership(err error, keyID uuid.UUID) error {
	if errors.Is(err, database.ErrNotAuthorized) {
		return fmt.Errorf("%w: API key %s", database.ErrNotFound, keyID)
	}
	return err
}

// RotateKey replaces the key's secret while preserving identity, ownership
// and configuration. The old secret stops authorizing the moment this
// returns; last_used_at resets to null because the new secret has no usage
// history. Returns the record with the new plaintext secret, once.
func (s *APIKeyService) RotateKey(ctx context.Context, keyID uuid.UUID, ownerID uint) (*model.APIKey, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		secret, err := model.GenerateAPIKey()
		if err != nil {
			return nil, err
		}
		digest := model.HashAPIKey(secret)
		preview := model.PreviewAPIKey(secret)

		if err := s.store.RotateKey(ctx, keyID, ownerID, digest, preview); err != nil {
			if errors.Is(err, database.ErrConflict) {
				continue
			}
			return nil, maskOwnership(err, keyID)
		}

		key, err := s.store.GetKey(ctx, keyID)
		if err != nil {
			return nil, err
		}
		key.PlainSecret = secret
		return key, nil
	}

	return nil, fmt.Errorf("%w: could not generate a unique secret", database.ErrConflict)
}

// GetKey retrieves one of the owner's keys. A key owned by someone else is
// reported as not found so key ids cannot be probed across owners.
func (s *APIKeyService) GetKey(ctx context.Context, keyID uuid.UUID, ownerID uint) (*model.APIKey, error) {
	key, err := s.store.GetKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: API key %s", database.ErrNotFound, keyID)
	}
	return key, nil
}

// ListKeys returns all of the owner's keys, newest first
func (s *APIKeyService) ListKeys(ctx context.Context, ownerID uint) ([]model.APIKey, error) {
	return s.store.ListKeysByOwner(ctx, ownerID)
}

// KeyPatch is a combined metadata update. Nil fields are left unchanged.
type KeyPatch struct {
	Name               *string
	IsActive           *bool
	RateLimitPerMinute *int
}

// UpdateKey applies the whole patch in one store write: either every field
// in the patch is persisted or none is, so a request mixing a valid rename
// with an invalid rate limit leaves no partial state behind.
func (s *APIKeyService) UpdateKey(ctx context.Context, keyID uuid.UUID, ownerID uint, patch KeyPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	err := s.store.UpdateKey(ctx, keyID, ownerID, database.KeyUpdate{
		Name:               patch.Name,
		IsActive:           patch.IsActive,
		RateLimitPerMinute: patch.RateLimitPerMinute,
	})
	return maskOwnership(err, keyID)
}

// RenameKey updates the key's label
func (s *APIKeyService) RenameKey(ctx context.Context, keyID uuid.UUID, ownerID uint, name string) error {
	return s.UpdateKey(ctx, keyID, ownerID, KeyPatch{Name: &name})
}

// SetActive flips the key's active flag. Pure metadata change, no secret
// material is touched.
func (s *APIKeyService) SetActive(ctx context.Context, keyID uuid.UUID, ownerID uint, isActive bool) error {
	return s.UpdateKey(ctx, keyID, ownerID, KeyPatch{IsActive: &isActive})
}

// UpdateRateLimit changes the per-minute rate limit
func (s *APIKeyService) UpdateRateLimit(ctx context.Context, keyID uuid.UUID, ownerID uint, newLimit int) error {
	return s.UpdateKey(ctx, keyID, ownerID, KeyPatch{RateLimitPerMinute: &newLimit})
}

// DeleteKey permanently removes the key and its usage events. Terminal.
func (s *APIKeyService) DeleteKey(ctx context.Context, keyID uuid.UUID, ownerID uint) error {
	return maskOwnership(s.store.DeleteKey(ctx, keyID, ownerID), keyID)
}

// Authorize resolves a presented secret to its key. Wrong secrets,
// inactive keys and expired keys all come back as not-found so callers
// cannot distinguish key state from a bad secret.
func (s *APIKeyService) Authorize(ctx context.Context, presentedSecret string) (*model.APIKey, error) {
	if !strings.HasPrefix(presentedSecret, model.SecretPrefix) {
		return nil, fmt.Errorf("%w: no key for presented secret", database.ErrNotFound)
	}

	key, err := s.store.GetKeyByDigest(ctx, model.HashAPIKey(presentedSecret))
	if err != nil {
		return nil, err
	}
	if !key.CanAuthorize() {
		return nil, fmt.Errorf("%w: no key for presented secret", database.ErrNotFound)
	}
	return key, nil
}
