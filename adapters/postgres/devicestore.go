package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/tokenrank/domain/credential"
	"github.com/artpar/tokenrank/ports"
	"github.com/jackc/pgx/v5"
)

// DeviceCodeStore implements ports.DeviceCodeStore using Postgres.
type DeviceCodeStore struct {
	db *DB
}

// NewDeviceCodeStore creates a new Postgres device-code store.
func NewDeviceCodeStore(db *DB) *DeviceCodeStore {
	return &DeviceCodeStore{db: db}
}

// Create stores a new device code.
func (s *DeviceCodeStore) Create(ctx context.Context, dc credential.DeviceCode) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO device_codes (code, verified, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`, dc.Code, dc.Verified, dc.ExpiresAt.UTC(), dc.CreatedAt.UTC())
	return err
}

// Get retrieves a device code.
func (s *DeviceCodeStore) Get(ctx context.Context, code string) (credential.DeviceCode, error) {
	var dc credential.DeviceCode
	var userID, handle, tempKey sql.NullString
	err := s.db.QueryRow(ctx, `
		SELECT code, user_id, twitter_handle, temp_api_key, verified, expires_at, created_at
		FROM device_codes
		WHERE code = $1
	`, code).Scan(&dc.Code, &userID, &handle, &tempKey, &dc.Verified, &dc.ExpiresAt, &dc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return credential.DeviceCode{}, ports.ErrNotFound
	}
	if err != nil {
		return credential.DeviceCode{}, err
	}
	dc.UserID = userID.String
	dc.Handle = handle.String
	dc.TempAPIKey = tempKey.String
	return dc, nil
}

// Approve marks a code verified and parks the raw key for one-time pickup.
func (s *DeviceCodeStore) Approve(ctx context.Context, code, userID, handle, tempKey string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE device_codes SET
			user_id = $2,
			twitter_handle = $3,
			temp_api_key = $4,
			verified = TRUE
		WHERE code = $1
	`, code, userID, handle, tempKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// Delete removes a code after its key has been picked up.
func (s *DeviceCodeStore) Delete(ctx context.Context, code string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM device_codes WHERE code = $1`, code)
	return err
}

// DeleteExpired removes codes past their redemption window.
func (s *DeviceCodeStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM device_codes WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ ports.DeviceCodeStore = (*DeviceCodeStore)(nil)
