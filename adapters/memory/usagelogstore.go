package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/tokenrank/domain/usage"
	"github.com/artpar/tokenrank/ports"
)

// UsageLogStore is an in-memory implementation of ports.UsageLogStore.
type UsageLogStore struct {
	mu      sync.RWMutex
	entries []usage.Entry
}

// NewUsageLogStore creates a new in-memory usage log.
func NewUsageLogStore() *UsageLogStore {
	return &UsageLogStore{}
}

// Append stores one immutable usage-log entry.
func (s *UsageLogStore) Append(ctx context.Context, e usage.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// HourlyStats returns per-hour token totals and active-user counts.
func (s *UsageLogStore) HourlyStats(ctx context.Context, since time.Time) ([]usage.HourlyBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucket struct {
		tokens int64
		users  map[string]struct{}
	}
	byHour := make(map[time.Time]*bucket)
	for _, e := range s.entries {
		if e.Timestamp.Before(since) {
			continue
		}
		hour := e.Timestamp.UTC().Truncate(time.Hour)
		b, ok := byHour[hour]
		if !ok {
			b = &bucket{users: make(map[string]struct{})}
			byHour[hour] = b
		}
		b.tokens += e.TokenCount
		b.users[e.UserID] = struct{}{}
	}

	out := make([]usage.HourlyBucket, 0, len(byHour))
	for hour, b := range byHour {
		out = append(out, usage.HourlyBucket{
			Hour:        hour,
			Tokens:      b.tokens,
			ActiveUsers: int64(len(b.users)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out, nil
}

// ActiveUsers returns the number of distinct principals since the cutoff.
func (s *UsageLogStore) ActiveUsers(ctx context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[string]struct{})
	for _, e := range s.entries {
		if !e.Timestamp.Before(since) {
			users[e.UserID] = struct{}{}
		}
	}
	return int64(len(users)), nil
}

// PeakHourlyTokens returns the largest single-hour token total ever logged.
func (s *UsageLogStore) PeakHourlyTokens(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byHour := make(map[time.Time]int64)
	var peak int64
	for _, e := range s.entries {
		hour := e.Timestamp.UTC().Truncate(time.Hour)
		byHour[hour] += e.TokenCount
		if byHour[hour] > peak {
			peak = byHour[hour]
		}
	}
	return peak, nil
}

// All returns a copy of every entry (for testing).
func (s *UsageLogStore) All() []usage.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]usage.Entry{}, s.entries...)
}

// Ensure interface compliance.
var _ ports.UsageLogStore = (*UsageLogStore)(nil)
