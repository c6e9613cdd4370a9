// Package metrics provides Prometheus metrics collection for TokenRank.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for TokenRank.
type Collector struct {
	// Ingest metrics
	IngestRequests *prometheus.CounterVec
	IngestDuration prometheus.Histogram
	TokensIngested *prometheus.CounterVec

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Store metrics
	DurableWriteErrors  prometheus.Counter
	VolatileWriteErrors prometheus.Counter

	// Leaderboard metrics
	LeaderboardRequests prometheus.Counter

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return newWith(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	return newWith(promauto.With(reg))
}

func newWith(factory promauto.Factory) *Collector {
	return &Collector{
		// Ingest metrics
		IngestRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokenrank",
				Name:      "ingest_requests_total",
				Help:      "Total number of metric ingest requests",
			},
			[]string{"outcome"},
		),
		IngestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tokenrank",
				Name:      "ingest_duration_seconds",
				Help:      "Ingest request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		TokensIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokenrank",
				Name:      "tokens_ingested_total",
				Help:      "Total tokens ingested by category",
			},
			[]string{"token_type"},
		),

		// Auth metrics
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokenrank",
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"reason"},
		),

		// Store metrics
		DurableWriteErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokenrank",
				Name:      "durable_write_errors_total",
				Help:      "Total failed writes to the durable store",
			},
		),
		VolatileWriteErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokenrank",
				Name:      "volatile_write_errors_total",
				Help:      "Total failed writes to the volatile rank cache",
			},
		),

		// Leaderboard metrics
		LeaderboardRequests: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokenrank",
				Name:      "leaderboard_requests_total",
				Help:      "Total leaderboard reads",
			},
		),

		// Config metrics
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokenrank",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokenrank",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
	}
}
