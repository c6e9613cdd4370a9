// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/tokenrank/adapters/metrics"
	"github.com/artpar/tokenrank/domain/otlp"
	"github.com/artpar/tokenrank/domain/usage"
	"github.com/artpar/tokenrank/ports"
	"github.com/rs/zerolog"
)

// Sentinel errors the HTTP layer maps to status codes.
var (
	// ErrMalformedEnvelope means the request body was not a parseable
	// OTLP-JSON metrics payload.
	ErrMalformedEnvelope = errors.New("malformed telemetry envelope")

	// ErrMissingAttributes means the envelope carried no handle or no API
	// key in its resource attributes.
	ErrMissingAttributes = errors.New("missing credential attributes")

	// ErrInvalidCredentials means the handle/key pair did not verify.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// DurableWriteError wraps a failure to persist to the authoritative store.
// Unlike volatile cache failures these fail the whole request, so the
// client retries and no tokens are silently lost.
type DurableWriteError struct {
	Op  string
	Err error
}

func (e *DurableWriteError) Error() string {
	return fmt.Sprintf("durable write %s: %v", e.Op, e.Err)
}

func (e *DurableWriteError) Unwrap() error { return e.Err }

// Receipt summarizes one accepted telemetry submission.
type Receipt struct {
	Handle       string
	Tokens       int64
	Deltas       usage.Deltas
	Unattributed int64
	Anomalies    int
	NoOp         bool
}

// IngestDeps contains dependencies for IngestService.
type IngestDeps struct {
	Profiles ports.ProfileStore
	Log      ports.UsageLogStore
	Cache    ports.RankCache
	Hasher   ports.Hasher
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Metrics  *metrics.Collector // optional
	Logger   zerolog.Logger

	// VolatileTimeout overrides the default rank-cache write deadline.
	VolatileTimeout time.Duration
}

// DefaultVolatileTimeout bounds rank-cache writes when none is configured.
const DefaultVolatileTimeout = 500 * time.Millisecond

// IngestService accepts OTLP telemetry submissions and applies them to the
// durable counters, the usage log, and the volatile ranking windows.
type IngestService struct {
	profiles ports.ProfileStore
	log      ports.UsageLogStore
	cache    ports.RankCache
	hasher   ports.Hasher
	clock    ports.Clock
	idGen    ports.IDGenerator
	metrics  *metrics.Collector
	logger   zerolog.Logger

	// volatileTimeout bounds every rank-cache write so a slow or dead
	// cache cannot stall ingestion.
	volatileTimeout time.Duration

	// throughputTTL is how long per-second throughput buckets live.
	throughputTTL time.Duration
}

// NewIngestService creates a new ingest service.
func NewIngestService(deps IngestDeps) *IngestService {
	timeout := deps.VolatileTimeout
	if timeout <= 0 {
		timeout = DefaultVolatileTimeout
	}
	return &IngestService{
		profiles:        deps.Profiles,
		log:             deps.Log,
		cache:           deps.Cache,
		hasher:          deps.Hasher,
		clock:           deps.Clock,
		idGen:           deps.IDGen,
		metrics:         deps.Metrics,
		logger:          deps.Logger,
		volatileTimeout: timeout,
		throughputTTL:   10 * time.Second,
	}
}

// Submit processes one telemetry payload end to end.
//
// Ordering: credentials are verified first, then the volatile ranking
// windows are updated best-effort, then the durable counters and usage log.
// A durable failure after a volatile success can leave the cache slightly
// ahead until the client retries; retries can double-count since delivery
// is at-least-once with no submission dedup.
func (s *IngestService) Submit(ctx context.Context, body []byte) (Receipt, error) {
	env, err := otlp.Decode(body)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	handle, secret := env.Credentials()
	if handle == "" || secret == "" {
		return Receipt{}, ErrMissingAttributes
	}

	profile, err := s.profiles.GetByHandle(ctx, handle)
	if errors.Is(err, ports.ErrNotFound) {
		return Receipt{}, ErrInvalidCredentials
	}
	if err != nil {
		return Receipt{}, &DurableWriteError{Op: "lookup profile", Err: err}
	}
	if !s.hasher.Compare(profile.APIKeyHash, secret) {
		return Receipt{}, ErrInvalidCredentials
	}

	x := otlp.Extract(env)
	total := x.Total()
	if total == 0 {
		// Nothing extracted. No state changes at all, not even last_active.
		return Receipt{Handle: profile.Handle, NoOp: true}, nil
	}

	now := s.clock.Now().UTC()
	event := usage.Event{
		Handle:       profile.Handle,
		Deltas:       x.Deltas,
		Unattributed: x.Unattributed,
		Timestamp:    now,
	}

	s.applyVolatile(ctx, profile.Handle, event)

	if err := s.profiles.IncrementTokens(ctx, profile.ID, x.Deltas, now); err != nil {
		s.countDurableError()
		return Receipt{}, &DurableWriteError{Op: "increment counters", Err: err}
	}

	entry := usage.Entry{
		ID:         s.idGen.New(),
		UserID:     profile.ID,
		Handle:     profile.Handle,
		TokenCount: total,
		Deltas:     x.Deltas,
		Timestamp:  now,
	}
	if err := s.log.Append(ctx, entry); err != nil {
		s.countDurableError()
		return Receipt{}, &DurableWriteError{Op: "append usage log", Err: err}
	}

	s.countTokens(x)

	s.logger.Info().
		Str("handle", profile.Handle).
		Int64("tokens", total).
		Int("anomalies", x.Anomalies).
		Msg("usage ingested")

	return Receipt{
		Handle:       profile.Handle,
		Tokens:       total,
		Deltas:       x.Deltas,
		Unattributed: x.Unattributed,
		Anomalies:    x.Anomalies,
	}, nil
}

// applyVolatile updates ranking windows, member summaries, and peak
// throughput in the rank cache. Every failure here is logged and swallowed;
// the cache is advisory and can be rebuilt from the usage log.
func (s *IngestService) applyVolatile(ctx context.Context, member string, event usage.Event) {
	if s.cache == nil {
		return
	}
	total := event.Total()
	vctx, cancel := context.WithTimeout(ctx, s.volatileTimeout)
	defer cancel()

	for _, window := range usage.Windows(event.Timestamp) {
		if err := s.cache.IncrWindow(vctx, window, member, total); err != nil {
			s.warnVolatile(err, "window", window)
		}
	}
	if err := s.cache.IncrMemberTotal(vctx, member, total); err != nil {
		s.warnVolatile(err, "member", member)
	}

	// Peak tracking is a racy get-compare-set. Two concurrent submissions
	// can both read a stale peak and the lower write can win; the peak is
	// cosmetic and slightly low is acceptable.
	second := event.Timestamp.Unix()
	bucket, err := s.cache.IncrThroughput(vctx, second, total, s.throughputTTL)
	if err != nil {
		s.warnVolatile(err, "throughput", "")
		return
	}
	peak, err := s.cache.Peak(vctx)
	if err != nil {
		s.warnVolatile(err, "peak read", "")
		return
	}
	if bucket > peak {
		if err := s.cache.SetPeak(vctx, bucket); err != nil {
			s.warnVolatile(err, "peak write", "")
		}
	}
}

func (s *IngestService) warnVolatile(err error, what, key string) {
	if s.metrics != nil {
		s.metrics.VolatileWriteErrors.Inc()
	}
	s.logger.Warn().Err(err).Str("target", what).Str("key", key).
		Msg("volatile rank-cache write failed")
}

func (s *IngestService) countDurableError() {
	if s.metrics != nil {
		s.metrics.DurableWriteErrors.Inc()
	}
}

func (s *IngestService) countTokens(x otlp.Extraction) {
	if s.metrics == nil {
		return
	}
	m := s.metrics.TokensIngested
	if x.Deltas.Input > 0 {
		m.WithLabelValues(string(usage.CategoryInput)).Add(float64(x.Deltas.Input))
	}
	if x.Deltas.Output > 0 {
		m.WithLabelValues(string(usage.CategoryOutput)).Add(float64(x.Deltas.Output))
	}
	if x.Deltas.CacheRead > 0 {
		m.WithLabelValues(string(usage.CategoryCacheRead)).Add(float64(x.Deltas.CacheRead))
	}
	if x.Deltas.CacheWrite > 0 {
		m.WithLabelValues(string(usage.CategoryCacheWrite)).Add(float64(x.Deltas.CacheWrite))
	}
	if x.Unattributed > 0 {
		m.WithLabelValues("unattributed").Add(float64(x.Unattributed))
	}
}
