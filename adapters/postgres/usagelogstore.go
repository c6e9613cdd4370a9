package postgres

import (
	"context"
	"time"

	"github.com/artpar/tokenrank/domain/usage"
	"github.com/artpar/tokenrank/ports"
)

// UsageLogStore implements ports.UsageLogStore using Postgres.
type UsageLogStore struct {
	db *DB
}

// NewUsageLogStore creates a new Postgres usage-log store.
func NewUsageLogStore(db *DB) *UsageLogStore {
	return &UsageLogStore{db: db}
}

// Append stores one immutable usage-log entry.
func (s *UsageLogStore) Append(ctx context.Context, e usage.Entry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO usage_logs (id, user_id, twitter_handle, token_count,
			input_tokens, output_tokens, cache_read_tokens, cache_write_tokens, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.UserID, e.Handle, e.TokenCount,
		e.Deltas.Input, e.Deltas.Output, e.Deltas.CacheRead, e.Deltas.CacheWrite,
		e.Timestamp.UTC())
	return err
}

// HourlyStats returns per-hour token totals and active-user counts for
// entries at or after since, ascending by hour.
func (s *UsageLogStore) HourlyStats(ctx context.Context, since time.Time) ([]usage.HourlyBucket, error) {
	rows, err := s.db.Query(ctx, `
		SELECT date_trunc('hour', timestamp) AS hour,
		       COALESCE(SUM(token_count), 0),
		       COUNT(DISTINCT user_id)
		FROM usage_logs
		WHERE timestamp >= $1
		GROUP BY hour
		ORDER BY hour ASC
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []usage.HourlyBucket
	for rows.Next() {
		var b usage.HourlyBucket
		if err := rows.Scan(&b.Hour, &b.Tokens, &b.ActiveUsers); err != nil {
			return nil, err
		}
		b.Hour = b.Hour.UTC()
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// ActiveUsers returns the number of distinct principals with entries at or
// after since.
func (s *UsageLogStore) ActiveUsers(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM usage_logs WHERE timestamp >= $1
	`, since.UTC()).Scan(&n)
	return n, err
}

// PeakHourlyTokens returns the largest single-hour token total ever logged.
func (s *UsageLogStore) PeakHourlyTokens(ctx context.Context) (int64, error) {
	var peak int64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(hourly), 0) FROM (
			SELECT SUM(token_count) AS hourly
			FROM usage_logs
			GROUP BY date_trunc('hour', timestamp)
		) t
	`).Scan(&peak)
	return peak, err
}

var _ ports.UsageLogStore = (*UsageLogStore)(nil)
