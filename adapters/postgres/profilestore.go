package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/tokenrank/domain/credential"
	"github.com/artpar/tokenrank/domain/principal"
	"github.com/artpar/tokenrank/domain/usage"
	"github.com/artpar/tokenrank/ports"
	"github.com/jackc/pgx/v5"
)

// ProfileStore implements ports.ProfileStore using Postgres.
type ProfileStore struct {
	db *DB
}

// NewProfileStore creates a new Postgres profile store.
func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db}
}

const profileColumns = `id, twitter_handle, COALESCE(avatar_url, ''), input_tokens, output_tokens,
	cache_read_tokens, cache_write_tokens, last_active, created_at, COALESCE(api_key_hash, '')`

func scanProfile(row pgx.Row) (principal.Profile, error) {
	var p principal.Profile
	err := row.Scan(
		&p.ID, &p.Handle, &p.AvatarURL, &p.InputTokens, &p.OutputTokens,
		&p.CacheReadTokens, &p.CacheWriteTokens, &p.LastActive, &p.CreatedAt, &p.APIKeyHash,
	)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return principal.Profile{}, ports.ErrNotFound
	}
	if err != nil {
		return principal.Profile{}, err
	}
	return p, nil
}

// GetByHandle retrieves a profile by normalized handle.
func (s *ProfileStore) GetByHandle(ctx context.Context, handle string) (principal.Profile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE twitter_handle = $1
	`, credential.NormalizeHandle(handle))
	return scanProfile(row)
}

// GetByKeyHash retrieves the profile owning the given API key digest.
func (s *ProfileStore) GetByKeyHash(ctx context.Context, digest string) (principal.Profile, error) {
	if digest == "" {
		return principal.Profile{}, ports.ErrNotFound
	}
	row := s.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE api_key_hash = $1
	`, digest)
	return scanProfile(row)
}

// Upsert creates a profile for the handle or rotates its key hash.
func (s *ProfileStore) Upsert(ctx context.Context, handle, keyHash string, now time.Time) (principal.Profile, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO profiles (twitter_handle, api_key_hash, last_active, created_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (twitter_handle) DO UPDATE SET
			api_key_hash = EXCLUDED.api_key_hash,
			last_active = EXCLUDED.last_active
		RETURNING `+profileColumns+`
	`, credential.NormalizeHandle(handle), keyHash, now.UTC())
	return scanProfile(row)
}

// IncrementTokens atomically adds deltas to a profile's counters. A single
// UPDATE keeps concurrent increments for the same profile correct without
// any read-modify-write in application code; total_tokens is a generated
// column so it can never drift from input + output.
func (s *ProfileStore) IncrementTokens(ctx context.Context, id string, d usage.Deltas, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE profiles SET
			input_tokens = input_tokens + $2,
			output_tokens = output_tokens + $3,
			cache_read_tokens = cache_read_tokens + $4,
			cache_write_tokens = cache_write_tokens + $5,
			last_active = $6
		WHERE id = $1
	`, id, d.Input, d.Output, d.CacheRead, d.CacheWrite, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// ListTop returns profiles in leaderboard order.
func (s *ProfileStore) ListTop(ctx context.Context, limit int) ([]principal.Profile, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		ORDER BY total_tokens DESC, created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []principal.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Rank returns the 1-based leaderboard position of the profile: principals
// with a strictly greater total, plus earlier-created principals with an
// equal total, rank ahead. Matches ListTop ordering exactly.
func (s *ProfileStore) Rank(ctx context.Context, p principal.Profile) (int, error) {
	var ahead int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM profiles
		WHERE total_tokens > $1
		   OR (total_tokens = $1 AND created_at < $2)
	`, p.TotalTokens(), p.CreatedAt).Scan(&ahead)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

// Ensure interface compliance.
var _ ports.ProfileStore = (*ProfileStore)(nil)
