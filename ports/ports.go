// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/tokenrank/domain/credential"
	"github.com/artpar/tokenrank/domain/principal"
	"github.com/artpar/tokenrank/domain/usage"
)

// ErrNotFound is returned by stores when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher produces deterministic digests of API keys. Verification recomputes
// the digest and compares it against the stored value, so the digest must be
// stable across calls (no per-call salt).
type Hasher interface {
	// Hash returns the digest of a secret.
	Hash(secret string) string

	// Compare checks whether secret hashes to digest.
	Compare(digest, secret string) bool
}

// -----------------------------------------------------------------------------
// Durable Store Ports (authoritative; failures fail the request)
// -----------------------------------------------------------------------------

// ProfileStore persists principal profiles and their cumulative counters.
type ProfileStore interface {
	// GetByHandle retrieves a profile by normalized handle.
	GetByHandle(ctx context.Context, handle string) (principal.Profile, error)

	// GetByKeyHash retrieves the profile owning the given API key digest.
	GetByKeyHash(ctx context.Context, digest string) (principal.Profile, error)

	// Upsert creates a profile for the handle or rotates its key hash,
	// returning the stored profile.
	Upsert(ctx context.Context, handle, keyHash string, now time.Time) (principal.Profile, error)

	// IncrementTokens atomically adds per-category deltas to a profile's
	// counters and bumps last_active. Must be a single atomic increment at
	// the storage layer, safe under concurrent calls for the same profile.
	IncrementTokens(ctx context.Context, id string, d usage.Deltas, at time.Time) error

	// ListTop returns profiles in leaderboard order: total tokens
	// descending, creation time ascending on ties.
	ListTop(ctx context.Context, limit int) ([]principal.Profile, error)

	// Rank returns the 1-based leaderboard position of the profile,
	// consistent with ListTop ordering.
	Rank(ctx context.Context, p principal.Profile) (int, error)
}

// UsageLogStore persists the append-only usage log.
type UsageLogStore interface {
	// Append stores one immutable usage-log entry.
	Append(ctx context.Context, e usage.Entry) error

	// HourlyStats returns per-hour token totals and active-user counts for
	// entries at or after since, in ascending hour order.
	HourlyStats(ctx context.Context, since time.Time) ([]usage.HourlyBucket, error)

	// ActiveUsers returns the number of distinct principals with entries
	// at or after since.
	ActiveUsers(ctx context.Context, since time.Time) (int64, error)

	// PeakHourlyTokens returns the largest single-hour token total ever
	// logged. Used as the durable fallback for peak-throughput reporting.
	PeakHourlyTokens(ctx context.Context) (int64, error)
}

// DeviceCodeStore persists pending CLI device-flow logins.
type DeviceCodeStore interface {
	// Create stores a new device code.
	Create(ctx context.Context, dc credential.DeviceCode) error

	// Get retrieves a device code.
	Get(ctx context.Context, code string) (credential.DeviceCode, error)

	// Approve marks a code verified and parks the raw key for one-time
	// pickup by the polling CLI.
	Approve(ctx context.Context, code, userID, handle, tempKey string) error

	// Delete removes a code after its key has been picked up.
	Delete(ctx context.Context, code string) error

	// DeleteExpired removes codes past their redemption window.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// -----------------------------------------------------------------------------
// Volatile Store Port (advisory cache; failures are warnings, never fatal)
// -----------------------------------------------------------------------------

// RankCache is the fast-aggregation layer for window rankings and peak
// throughput. It may be lost, reset, or rebuilt from the usage log without
// correctness impact; callers swallow its errors at the boundary.
type RankCache interface {
	// IncrWindow adds delta to the member's score in a ranking window.
	IncrWindow(ctx context.Context, window, member string, delta int64) error

	// IncrMemberTotal adds delta to the member's volatile summary counter.
	IncrMemberTotal(ctx context.Context, member string, delta int64) error

	// IncrThroughput adds delta to the per-second bucket, arranges for the
	// bucket to expire after ttl, and returns the bucket's new value.
	IncrThroughput(ctx context.Context, second int64, delta int64, ttl time.Duration) (int64, error)

	// Peak returns the all-time peak per-second token total (0 if unset).
	Peak(ctx context.Context) (int64, error)

	// SetPeak stores a new peak value.
	SetPeak(ctx context.Context, v int64) error
}
