// Package principal provides the ranked-user value type and pure ranking
// functions. This package has NO dependencies on I/O or external packages.
package principal

import (
	"sort"
	"time"

	"github.com/artpar/tokenrank/domain/usage"
)

// Profile represents a ranked user (immutable value type). Counters are
// cumulative lifetime totals; they are mutated only through the store's
// atomic increment operation, never read-modify-write in application code.
type Profile struct {
	ID               string
	Handle           string
	AvatarURL        string
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	LastActive       time.Time
	CreatedAt        time.Time
	APIKeyHash       string
}

// TotalTokens is the ranking total: input + output. Cache categories are
// tracked as an efficiency signal and deliberately excluded here.
func (p Profile) TotalTokens() int64 {
	return p.InputTokens + p.OutputTokens
}

// SavingsScore is the share of prompt tokens served from cache, as a
// percentage. Zero when the principal has no prompt tokens at all.
// Derived on every read, never stored.
func (p Profile) SavingsScore() float64 {
	denom := p.InputTokens + p.CacheReadTokens
	if denom == 0 {
		return 0
	}
	return float64(p.CacheReadTokens) / float64(denom) * 100
}

// Apply returns a copy of the profile with the deltas added. Used by the
// in-memory store; the durable store increments in SQL instead.
func (p Profile) Apply(d usage.Deltas, at time.Time) Profile {
	p.InputTokens += d.Input
	p.OutputTokens += d.Output
	p.CacheReadTokens += d.CacheRead
	p.CacheWriteTokens += d.CacheWrite
	p.LastActive = at
	return p
}

// Less reports whether a ranks strictly ahead of b: higher total first,
// ties broken by creation order so rank assignment is deterministic and
// reproducible across repeated queries.
func Less(a, b Profile) bool {
	if a.TotalTokens() != b.TotalTokens() {
		return a.TotalTokens() > b.TotalTokens()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// SortRanked orders profiles into leaderboard order in place.
// This is a PURE function apart from the in-place sort.
func SortRanked(profiles []Profile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return Less(profiles[i], profiles[j])
	})
}

// Rank returns the 1-based leaderboard position p would occupy among all:
// one plus the number of principals ranked strictly ahead of it. Matches
// the position SortRanked assigns.
func Rank(all []Profile, p Profile) int {
	rank := 1
	for _, other := range all {
		if other.ID == p.ID {
			continue
		}
		if Less(other, p) {
			rank++
		}
	}
	return rank
}
