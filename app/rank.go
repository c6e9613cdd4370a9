package app

import (
	"context"
	"time"

	"github.com/artpar/tokenrank/domain/principal"
	"github.com/artpar/tokenrank/domain/usage"
	"github.com/artpar/tokenrank/ports"
	"github.com/rs/zerolog"
)

// DefaultLeaderboardLimit caps how many entries a leaderboard read returns.
const DefaultLeaderboardLimit = 100

// activeWindow is the lookback used for the active-user count.
const activeWindow = 24 * time.Hour

// RankedProfile is one leaderboard row: a profile plus its computed rank.
type RankedProfile struct {
	Rank    int
	Profile principal.Profile
}

// Stats is the leaderboard summary block.
type Stats struct {
	ActiveUsers    int64
	PeakThroughput int64 // tokens per second
	Last24hTokens  int64
	Hourly         []usage.HourlyBucket
}

// Leaderboard is the full leaderboard read model.
type Leaderboard struct {
	Entries     []RankedProfile
	Stats       Stats
	GeneratedAt time.Time
}

// RankDeps contains dependencies for RankService.
type RankDeps struct {
	Profiles ports.ProfileStore
	Log      ports.UsageLogStore
	Cache    ports.RankCache
	Clock    ports.Clock
	Logger   zerolog.Logger
}

// RankService serves leaderboard and per-principal ranking reads. All reads
// come from the durable store; the rank cache only contributes the peak
// throughput figure, with a durable fallback when the cache is unavailable.
type RankService struct {
	profiles ports.ProfileStore
	log      ports.UsageLogStore
	cache    ports.RankCache
	clock    ports.Clock
	logger   zerolog.Logger
}

// NewRankService creates a new rank service.
func NewRankService(deps RankDeps) *RankService {
	return &RankService{
		profiles: deps.Profiles,
		log:      deps.Log,
		cache:    deps.Cache,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
}

// Leaderboard returns the ranked top profiles with the stats block.
func (s *RankService) Leaderboard(ctx context.Context, limit int) (Leaderboard, error) {
	if limit <= 0 || limit > DefaultLeaderboardLimit {
		limit = DefaultLeaderboardLimit
	}
	now := s.clock.Now().UTC()

	top, err := s.profiles.ListTop(ctx, limit)
	if err != nil {
		return Leaderboard{}, err
	}

	entries := make([]RankedProfile, 0, len(top))
	for i, p := range top {
		// ListTop ordering equals rank ordering, so position is rank.
		entries = append(entries, RankedProfile{Rank: i + 1, Profile: p})
	}

	stats, err := s.stats(ctx, now)
	if err != nil {
		return Leaderboard{}, err
	}

	return Leaderboard{Entries: entries, Stats: stats, GeneratedAt: now}, nil
}

// Profile returns one principal with its current rank.
func (s *RankService) Profile(ctx context.Context, handle string) (RankedProfile, error) {
	p, err := s.profiles.GetByHandle(ctx, handle)
	if err != nil {
		return RankedProfile{}, err
	}
	rank, err := s.profiles.Rank(ctx, p)
	if err != nil {
		return RankedProfile{}, err
	}
	return RankedProfile{Rank: rank, Profile: p}, nil
}

func (s *RankService) stats(ctx context.Context, now time.Time) (Stats, error) {
	since := now.Add(-activeWindow)

	active, err := s.log.ActiveUsers(ctx, since)
	if err != nil {
		return Stats{}, err
	}
	hourly, err := s.log.HourlyStats(ctx, since)
	if err != nil {
		return Stats{}, err
	}

	var recent int64
	for _, b := range hourly {
		recent += b.Tokens
	}

	return Stats{
		ActiveUsers:    active,
		PeakThroughput: s.peak(ctx),
		Last24hTokens:  recent,
		Hourly:         hourly,
	}, nil
}

// peak prefers the cache's per-second peak; when the cache is missing or
// failing it falls back to the best logged hour averaged down to a second.
func (s *RankService) peak(ctx context.Context) int64 {
	if s.cache != nil {
		v, err := s.cache.Peak(ctx)
		if err == nil && v > 0 {
			return v
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("rank-cache peak read failed, using durable fallback")
		}
	}
	hourly, err := s.log.PeakHourlyTokens(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("durable peak fallback failed")
		return 0
	}
	return hourly / 3600
}
