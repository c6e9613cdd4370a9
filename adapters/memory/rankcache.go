package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/tokenrank/ports"
)

// RankCache is an in-memory implementation of ports.RankCache. It keeps
// the same advisory semantics as the Redis adapter: rebuildable, never
// authoritative. Throughput buckets are pruned lazily on write based on
// the ttl they were stored with.
type RankCache struct {
	mu      sync.Mutex
	windows map[string]map[string]int64 // window -> member -> score
	totals  map[string]int64            // member -> volatile summary counter
	buckets map[int64]throughputBucket  // unix second -> running total
	peak    int64
}

type throughputBucket struct {
	tokens    int64
	expiresAt int64 // unix second
}

// NewRankCache creates a new in-memory rank cache.
func NewRankCache() *RankCache {
	return &RankCache{
		windows: make(map[string]map[string]int64),
		totals:  make(map[string]int64),
		buckets: make(map[int64]throughputBucket),
	}
}

// IncrWindow adds delta to the member's score in a ranking window.
func (c *RankCache) IncrWindow(ctx context.Context, window, member string, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[window]
	if !ok {
		w = make(map[string]int64)
		c.windows[window] = w
	}
	w[member] += delta
	return nil
}

// IncrMemberTotal adds delta to the member's volatile summary counter.
func (c *RankCache) IncrMemberTotal(ctx context.Context, member string, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals[member] += delta
	return nil
}

// IncrThroughput adds delta to the per-second bucket and returns the
// bucket's new value. Expired buckets are reclaimed on the way through.
func (c *RankCache) IncrThroughput(ctx context.Context, second int64, delta int64, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sec, b := range c.buckets {
		if b.expiresAt <= second {
			delete(c.buckets, sec)
		}
	}

	b := c.buckets[second]
	b.tokens += delta
	b.expiresAt = second + int64(ttl/time.Second)
	c.buckets[second] = b
	return b.tokens, nil
}

// Peak returns the all-time peak per-second token total.
func (c *RankCache) Peak(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak, nil
}

// SetPeak stores a new peak value.
func (c *RankCache) SetPeak(ctx context.Context, v int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peak = v
	return nil
}

// WindowScore returns a member's score in a window (for testing).
func (c *RankCache) WindowScore(window, member string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.windows[window][member]
}

// MemberTotal returns a member's volatile summary counter (for testing).
func (c *RankCache) MemberTotal(member string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[member]
}

// Ensure interface compliance.
var _ ports.RankCache = (*RankCache)(nil)
