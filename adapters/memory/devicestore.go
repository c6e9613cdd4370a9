package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/tokenrank/domain/credential"
	"github.com/artpar/tokenrank/ports"
)

// DeviceCodeStore is an in-memory implementation of ports.DeviceCodeStore.
type DeviceCodeStore struct {
	mu    sync.RWMutex
	codes map[string]credential.DeviceCode
}

// NewDeviceCodeStore creates a new in-memory device code store.
func NewDeviceCodeStore() *DeviceCodeStore {
	return &DeviceCodeStore{codes: make(map[string]credential.DeviceCode)}
}

// Create stores a new device code.
func (s *DeviceCodeStore) Create(ctx context.Context, dc credential.DeviceCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[dc.Code] = dc
	return nil
}

// Get retrieves a device code.
func (s *DeviceCodeStore) Get(ctx context.Context, code string) (credential.DeviceCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dc, ok := s.codes[code]
	if !ok {
		return credential.DeviceCode{}, ports.ErrNotFound
	}
	return dc, nil
}

// Approve marks a code verified and parks the raw key for CLI pickup.
func (s *DeviceCodeStore) Approve(ctx context.Context, code, userID, handle, tempKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dc, ok := s.codes[code]
	if !ok {
		return ports.ErrNotFound
	}
	dc.Verified = true
	dc.UserID = userID
	dc.Handle = handle
	dc.TempAPIKey = tempKey
	s.codes[code] = dc
	return nil
}

// Delete removes a code after its key has been picked up.
func (s *DeviceCodeStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
	return nil
}

// DeleteExpired removes codes past their redemption window.
func (s *DeviceCodeStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for code, dc := range s.codes {
		if dc.Expired(now) {
			delete(s.codes, code)
			n++
		}
	}
	return n, nil
}

// Ensure interface compliance.
var _ ports.DeviceCodeStore = (*DeviceCodeStore)(nil)
