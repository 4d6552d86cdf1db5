package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amlguard/compliance-api/model"
	"github.com/google/uuid"
)

// MemoryStore is the in-memory adapter. It backs unit tests and must pass
// the same conformance suite as the SQL adapter; any behavioral difference
// between the two is a bug.
type MemoryStore struct {
	mu sync.RWMutex

	keys     map[uuid.UUID]*model.APIKey
	byDigest map[string]uuid.UUID
	keySeq   map[uuid.UUID]uint64 // insertion order, tie-breaker for listing
	events   []model.UsageEvent
	users    map[uint]*model.User

	seq    uint64
	userID uint
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:     make(map[uuid.UUID]*model.APIKey),
		byDigest: make(map[string]uuid.UUID),
		keySeq:   make(map[uuid.UUID]uint64),
		users:    make(map[uint]*model.User),
	}
}

func cloneKey(key *model.APIKey) *model.APIKey {
	cp := *key
	cp.PlainSecret = ""
	if key.LastUsedAt != nil {
		t := *key.LastUsedAt
		cp.LastUsedAt = &t
	}
	if key.ExpiresAt != nil {
		t := *key.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

// CreateKey persists a new API key record
func (s *MemoryStore) CreateKey(ctx context.Context, key *model.APIKey) error {
	if err := ValidateNewKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byDigest[key.SecretDigest]; exists {
		return fmt.Errorf("%w: digest already exists", ErrConflict)
	}

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	now := time.Now()
	if key.CreatedAt.IsZero() {
		key.CreatedAt = now
	}
	key.UpdatedAt = now

	s.seq++
	s.keySeq[key.ID] = s.seq
	s.keys[key.ID] = cloneKey(key)
	s.byDigest[key.SecretDigest] = key.ID

	return nil
}

// GetKey retrieves a key by id
func (s *MemoryStore) GetKey(ctx context.Context, id uuid.UUID) (*model.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: API key %s", ErrNotFound, id)
	}
	return cloneKey(key), nil
}

// GetKeyByDigest retrieves a key by its secret digest
func (s *MemoryStore) GetKeyByDigest(ctx context.Context, digest string) (*model.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byDigest[digest]
	if !ok {
		return nil, fmt.Errorf("%w: no key for presented secret", ErrNotFound)
	}
	return cloneKey(s.keys[id]), nil
}

// ListKeysByOwner returns all keys for an owner, newest first
func (s *MemoryStore) ListKeysByOwner(ctx context.Context, ownerID uint) ([]model.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []model.APIKey
	for _, key := range s.keys {
		if key.OwnerID == ownerID {
			keys = append(keys, *cloneKey(key))
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].CreatedAt.After(keys[j].CreatedAt)
		}
		return s.keySeq[keys[i].ID] > s.keySeq[keys[j].ID]
	})
	return keys, nil
}

func (s *MemoryStore) checkOwnershipLocked(id uuid.UUID, ownerID uint) (*model.APIKey, error) {
	key, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: API key %s", ErrNotFound, id)
	}
	if key.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: API key %s", ErrNotAuthorized, id)
	}
	return key, nil
}

// UpdateKey applies a metadata patch with ownership enforcement
func (s *MemoryStore) UpdateKey(ctx context.Context, id uuid.UUID, ownerID uint, patch KeyUpdate) error {
	if err := ValidateKeyUpdate(patch); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.checkOwnershipLocked(id, ownerID)
	if err != nil {
		return err
	}

	if patch.Name != nil {
		key.Name = *patch.Name
	}
	if patch.IsActive != nil {
		key.IsActive = *patch.IsActive
	}
	if patch.RateLimitPerMinute != nil {
		key.RateLimitPerMinute = *patch.RateLimitPerMinute
	}
	key.UpdatedAt = time.Now()

	return nil
}

// RotateKey swaps digest and preview in a single mutation under the store
// lock, so concurrent rotations serialize and the last writer wins
func (s *MemoryStore) RotateKey(ctx context.Context, id uuid.UUID, ownerID uint, digest, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.checkOwnershipLocked(id, ownerID)
	if err != nil {
		return err
	}

	if existing, ok := s.byDigest[digest]; ok && existing != id {
		return fmt.Errorf("%w: digest already exists", ErrConflict)
	}

	delete(s.byDigest, key.SecretDigest)
	key.SecretDigest = digest
	key.Preview = preview
	key.LastUsedAt = nil
	key.UpdatedAt = time.Now()
	s.byDigest[digest] = id

	return nil
}

// DeleteKey removes the key and cascade-deletes its usage events
func (s *MemoryStore) DeleteKey(ctx context.Context, id uuid.UUID, ownerID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.checkOwnershipLocked(id, ownerID)
	if err != nil {
		return err
	}

	delete(s.byDigest, key.SecretDigest)
	delete(s.keys, id)
	delete(s.keySeq, id)

	kept := s.events[:0]
	for _, e := range s.events {
		if e.APIKeyID != id {
			kept = append(kept, e)
		}
	}
	s.events = kept

	return nil
}

// InsertEvent appends one usage event
func (s *MemoryStore) InsertEvent(ctx context.Context, event *model.UsageEvent) error {
	if event.APIKeyID == uuid.Nil {
		return fmt.Errorf("%w: usage event requires an api key id", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.events = append(s.events, *event)

	return nil
}

// TouchLastUsed advances last_used_at, never moving it backward
func (s *MemoryStore) TouchLastUsed(ctx context.Context, keyID uuid.UUID, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[keyID]
	if !ok {
		return nil
	}
	if key.LastUsedAt == nil || key.LastUsedAt.Before(ts) {
		t := ts
		key.LastUsedAt = &t
	}
	return nil
}

// EventsSince returns events for the given keys from since onwards
func (s *MemoryStore) EventsSince(ctx context.Context, keyIDs []uuid.UUID, since time.Time) ([]model.UsageEvent, error) {
	if len(keyIDs) == 0 {
		return nil, nil
	}

	wanted := make(map[uuid.UUID]bool, len(keyIDs))
	for _, id := range keyIDs {
		wanted[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []model.UsageEvent
	for _, e := range s.events {
		if wanted[e.APIKeyID] && !e.Timestamp.Before(since) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// EventsBefore returns up to limit events older than cutoff, oldest first
func (s *MemoryStore) EventsBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []model.UsageEvent
	for _, e := range s.events {
		if e.Timestamp.Before(cutoff) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// PruneEvents deletes the given events by id
func (s *MemoryStore) PruneEvents(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	doomed := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	kept := s.events[:0]
	for _, e := range s.events {
		if doomed[e.ID] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

// GetUser resolves an owner profile by id
func (s *MemoryStore) GetUser(ctx context.Context, id uint) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	cp := *user
	return &cp, nil
}

// CreateUser registers an owner profile. Used by the registration handler
// wiring in tests; the SQL path persists users through GORM directly.
func (s *MemoryStore) CreateUser(user *model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == 0 {
		s.userID++
		user.ID = s.userID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	cp := *user
	s.users[user.ID] = &cp
	return user
}
