// Package hasher provides API key digest implementations.
package hasher

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/artpar/tokenrank/ports"
)

// SHA256 digests keys with unsalted SHA-256, hex-encoded. The digest is
// deterministic so stored values can be compared (and indexed) directly;
// keys are high-entropy random strings, which is what makes the lack of
// salt acceptable here.
type SHA256 struct{}

// Hash returns the hex-encoded SHA-256 digest of secret.
func (SHA256) Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Compare checks whether secret hashes to digest in constant time.
func (h SHA256) Compare(digest, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(digest), []byte(h.Hash(secret))) == 1
}

// Fake provides an identity hasher for testing (NOT FOR PRODUCTION).
type Fake struct{}

// Hash returns the secret unchanged.
func (Fake) Hash(secret string) string { return secret }

// Compare does simple equality check.
func (Fake) Compare(digest, secret string) bool { return digest == secret }

// Ensure interface compliance.
var (
	_ ports.Hasher = SHA256{}
	_ ports.Hasher = Fake{}
)
