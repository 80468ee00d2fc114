package device

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// tokenBytes is the entropy budget for a minted device token (spec §4.5:
// "≥32 bytes of entropy, hex-encoded").
const tokenBytes = 32

// GenerateDeviceToken mints a new high-entropy, hex-encoded agent token. The
// plain value is returned to the caller exactly once; only its hash is
// persisted (spec §3, §4.5).
func GenerateDeviceToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("device: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hex digest of a plain token. Stored in place
// of the token itself; never logged (spec §3 invariants, §7).
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
