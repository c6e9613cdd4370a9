package app

import (
	"context"
	"errors"

	"github.com/artpar/tokenrank/domain/credential"
	"github.com/artpar/tokenrank/domain/principal"
	"github.com/artpar/tokenrank/ports"
	"github.com/rs/zerolog"
)

// Device-flow sentinel errors.
var (
	// ErrAuthorizationPending means the user has not approved the code yet.
	ErrAuthorizationPending = errors.New("authorization pending")

	// ErrDeviceCodeExpired means the code's redemption window has passed.
	ErrDeviceCodeExpired = errors.New("device code expired")

	// ErrMissingHandle means an auth request carried no handle.
	ErrMissingHandle = errors.New("missing handle")
)

// DeviceStart is the response to a new device-flow login.
type DeviceStart struct {
	Code      string
	ExpiresIn int // seconds
	Interval  int // seconds between polls
}

// DeviceGrant is the credential handed out once, when an approved code is
// first polled.
type DeviceGrant struct {
	Handle string
	APIKey string
}

// KeyGrant is a freshly issued API key with its owning profile.
type KeyGrant struct {
	Profile principal.Profile
	APIKey  string
}

// DeviceDeps contains dependencies for DeviceService.
type DeviceDeps struct {
	Profiles ports.ProfileStore
	Codes    ports.DeviceCodeStore
	Hasher   ports.Hasher
	Clock    ports.Clock
	Logger   zerolog.Logger
}

// DeviceService implements credential issuance: the CLI device-code login
// flow plus direct key generation and verification.
type DeviceService struct {
	profiles ports.ProfileStore
	codes    ports.DeviceCodeStore
	hasher   ports.Hasher
	clock    ports.Clock
	logger   zerolog.Logger
}

// NewDeviceService creates a new device service.
func NewDeviceService(deps DeviceDeps) *DeviceService {
	return &DeviceService{
		profiles: deps.Profiles,
		codes:    deps.Codes,
		hasher:   deps.Hasher,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
}

// Start opens a new device-flow login and returns the code the user must
// approve in a browser. Expired codes are swept opportunistically.
func (s *DeviceService) Start(ctx context.Context) (DeviceStart, error) {
	now := s.clock.Now().UTC()
	if n, err := s.codes.DeleteExpired(ctx, now); err == nil && n > 0 {
		s.logger.Debug().Int64("count", n).Msg("swept expired device codes")
	}

	dc := credential.DeviceCode{
		Code:      credential.GenerateDeviceCode(),
		ExpiresAt: now.Add(credential.DeviceCodeTTL),
		CreatedAt: now,
	}
	if err := s.codes.Create(ctx, dc); err != nil {
		return DeviceStart{}, err
	}

	return DeviceStart{
		Code:      dc.Code,
		ExpiresIn: int(credential.DeviceCodeTTL.Seconds()),
		Interval:  credential.PollInterval,
	}, nil
}

// Poll checks a device code. It returns ErrAuthorizationPending until the
// code is approved, then hands out the parked key exactly once and deletes
// the code.
func (s *DeviceService) Poll(ctx context.Context, code string) (DeviceGrant, error) {
	dc, err := s.codes.Get(ctx, code)
	if err != nil {
		return DeviceGrant{}, err
	}
	if dc.Expired(s.clock.Now().UTC()) {
		return DeviceGrant{}, ErrDeviceCodeExpired
	}
	if !dc.Verified {
		return DeviceGrant{}, ErrAuthorizationPending
	}

	if err := s.codes.Delete(ctx, code); err != nil {
		s.logger.Warn().Err(err).Str("code", code).Msg("device code cleanup failed")
	}
	return DeviceGrant{Handle: dc.Handle, APIKey: dc.TempAPIKey}, nil
}

// Approve is the browser side of the flow: the user confirms the code with
// their handle, which mints a key, binds it to their profile, and parks the
// raw key for the polling CLI.
func (s *DeviceService) Approve(ctx context.Context, code, handle string) (principal.Profile, error) {
	if credential.NormalizeHandle(handle) == "" {
		return principal.Profile{}, ErrMissingHandle
	}
	dc, err := s.codes.Get(ctx, code)
	if err != nil {
		return principal.Profile{}, err
	}
	if dc.Expired(s.clock.Now().UTC()) {
		return principal.Profile{}, ErrDeviceCodeExpired
	}

	grant, err := s.GenerateKey(ctx, handle)
	if err != nil {
		return principal.Profile{}, err
	}
	if err := s.codes.Approve(ctx, code, grant.Profile.ID, grant.Profile.Handle, grant.APIKey); err != nil {
		return principal.Profile{}, err
	}

	s.logger.Info().Str("handle", grant.Profile.Handle).Msg("device code approved")
	return grant.Profile, nil
}

// GenerateKey mints a fresh API key for the handle, creating the profile if
// needed and rotating the key hash if it already exists. The raw key is
// returned once; only its digest is stored.
func (s *DeviceService) GenerateKey(ctx context.Context, handle string) (KeyGrant, error) {
	if credential.NormalizeHandle(handle) == "" {
		return KeyGrant{}, ErrMissingHandle
	}
	raw := credential.GenerateKey()
	profile, err := s.profiles.Upsert(ctx, handle, s.hasher.Hash(raw), s.clock.Now().UTC())
	if err != nil {
		return KeyGrant{}, err
	}
	return KeyGrant{Profile: profile, APIKey: raw}, nil
}

// VerifyKey resolves a raw API key to its owning profile.
func (s *DeviceService) VerifyKey(ctx context.Context, secret string) (principal.Profile, error) {
	if secret == "" {
		return principal.Profile{}, ErrInvalidCredentials
	}
	profile, err := s.profiles.GetByKeyHash(ctx, s.hasher.Hash(secret))
	if errors.Is(err, ports.ErrNotFound) {
		return principal.Profile{}, ErrInvalidCredentials
	}
	if err != nil {
		return principal.Profile{}, err
	}
	return profile, nil
}
