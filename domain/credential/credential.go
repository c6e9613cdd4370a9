// Package credential provides API key and device-code value types with
// pure generation and normalization functions.
package credential

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// KeyPrefix is the prefix of every raw API key issued by the service.
const KeyPrefix = "sk_rank_"

// DeviceCodeTTL is how long a device code stays redeemable.
const DeviceCodeTTL = 10 * time.Minute

// PollInterval is the polling cadence the CLI is told to use, in seconds.
const PollInterval = 5

// NormalizeHandle canonicalizes a principal handle for lookup: the leading
// @ is stripped and comparison is case-insensitive.
func NormalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(h)
}

// GenerateKey creates a new raw API key: KeyPrefix + 32 hex chars.
// The raw key is shown to the user exactly once; only its digest is stored.
func GenerateKey() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return KeyPrefix + hex.EncodeToString(buf)
}

// GenerateDeviceCode creates a short human-typable device code (6 upper-hex
// characters).
func GenerateDeviceCode() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}

// DeviceCode tracks one pending CLI login (value type).
type DeviceCode struct {
	Code       string
	UserID     string
	Handle     string
	TempAPIKey string // raw key parked for one-time pickup by the CLI
	Verified   bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Expired reports whether the code is past its redemption window.
func (d DeviceCode) Expired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}
