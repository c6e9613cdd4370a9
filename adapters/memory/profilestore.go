// Package memory provides in-memory implementations of the storage ports.
// They back the test suite and serve as the degraded-mode volatile store
// when no Redis URL is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/tokenrank/domain/credential"
	"github.com/artpar/tokenrank/domain/principal"
	"github.com/artpar/tokenrank/domain/usage"
	"github.com/artpar/tokenrank/ports"
	"github.com/google/uuid"
)

// ProfileStore is an in-memory implementation of ports.ProfileStore.
type ProfileStore struct {
	mu       sync.RWMutex
	byID     map[string]principal.Profile
	byHandle map[string]string // handle -> id
}

// NewProfileStore creates a new in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		byID:     make(map[string]principal.Profile),
		byHandle: make(map[string]string),
	}
}

// GetByHandle retrieves a profile by normalized handle.
func (s *ProfileStore) GetByHandle(ctx context.Context, handle string) (principal.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle = credential.NormalizeHandle(handle)
	id, ok := s.byHandle[handle]
	if !ok {
		return principal.Profile{}, ports.ErrNotFound
	}
	return s.byID[id], nil
}

// GetByKeyHash retrieves the profile owning the given API key digest.
func (s *ProfileStore) GetByKeyHash(ctx context.Context, digest string) (principal.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.byID {
		if p.APIKeyHash == digest && digest != "" {
			return p, nil
		}
	}
	return principal.Profile{}, ports.ErrNotFound
}

// Upsert creates a profile for the handle or rotates its key hash.
func (s *ProfileStore) Upsert(ctx context.Context, handle, keyHash string, now time.Time) (principal.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle = credential.NormalizeHandle(handle)
	if id, ok := s.byHandle[handle]; ok {
		p := s.byID[id]
		p.APIKeyHash = keyHash
		p.LastActive = now
		s.byID[id] = p
		return p, nil
	}

	p := principal.Profile{
		ID:         uuid.New().String(),
		Handle:     handle,
		APIKeyHash: keyHash,
		LastActive: now,
		CreatedAt:  now,
	}
	s.byID[p.ID] = p
	s.byHandle[handle] = p.ID
	return p, nil
}

// IncrementTokens atomically adds deltas to a profile's counters. The
// store mutex makes the read-modify-write atomic, mirroring the single
// UPDATE the durable store issues.
func (s *ProfileStore) IncrementTokens(ctx context.Context, id string, d usage.Deltas, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return ports.ErrNotFound
	}
	s.byID[id] = p.Apply(d, at)
	return nil
}

// ListTop returns profiles in leaderboard order.
func (s *ProfileStore) ListTop(ctx context.Context, limit int) ([]principal.Profile, error) {
	s.mu.RLock()
	all := make([]principal.Profile, 0, len(s.byID))
	for _, p := range s.byID {
		all = append(all, p)
	}
	s.mu.RUnlock()

	principal.SortRanked(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Rank returns the 1-based leaderboard position of the profile.
func (s *ProfileStore) Rank(ctx context.Context, p principal.Profile) (int, error) {
	s.mu.RLock()
	all := make([]principal.Profile, 0, len(s.byID))
	for _, other := range s.byID {
		all = append(all, other)
	}
	s.mu.RUnlock()

	return principal.Rank(all, p), nil
}

// Ensure interface compliance.
var _ ports.ProfileStore = (*ProfileStore)(nil)
