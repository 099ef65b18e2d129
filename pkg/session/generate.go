package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// defaultIDLength is the default session ID length in hex characters
	// (so half that many random bytes).
	defaultIDLength = 128

	// fingerprintBytes is how much of the digest the fingerprint keeps.
	fingerprintBytes = 16
)

// GenerateID creates a cryptographically random session identifier of the
// given length in hex characters. It fails only if the secure random source
// fails, which is fatal for session creation.
func GenerateID(length int) (string, error) {
	if length <= 0 {
		length = defaultIDLength
	}
	b := make([]byte, (length+1)/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(b)[:length], nil
}

// Fingerprint derives a client fingerprint from the IP address, user agent,
// and a high-resolution creation timestamp. The result is a low-cardinality
// anomaly signal, not a credential: it is derived, not secret, and never
// sufficient for authorization on its own.
func Fingerprint(ipAddress, userAgent string, at time.Time) string {
	data := fmt.Sprintf("%s:%s:%d", ipAddress, userAgent, at.UnixNano())
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:fingerprintBytes])
}
