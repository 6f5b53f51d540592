package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	// SessionTokenLength is the number of characters in a launch session token.
	SessionTokenLength = 32

	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// Bytes at or above this value are discarded so every character of the
	// alphabet is equally likely (248 = 4 * 62).
	alnumRejectAbove = 256 - 256%len(alphanumeric)
)

// Reader is the entropy source. Tests may swap it to exercise failures.
var Reader io.Reader = rand.Reader

// GenerateAlnumToken returns a random string of n characters drawn
// uniformly from [A-Za-z0-9]. The result is safe for use in file names and
// URL query strings without escaping.
func GenerateAlnumToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", n)
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4)
	for len(out) < n {
		if _, err := io.ReadFull(Reader, buf); err != nil {
			return "", fmt.Errorf("failed to generate random token: %w", err)
		}
		for _, b := range buf {
			if int(b) >= alnumRejectAbove {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}

	return string(out), nil
}

// NewSessionToken returns a fresh SessionTokenLength character token.
func NewSessionToken() (string, error) {
	return GenerateAlnumToken(SessionTokenLength)
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token.
// Logs carry the fingerprint so a session token never appears in clear.
//
// The fingerprint is returned as a base64url-encoded string (43 chars).
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ShortFingerprint is the first 12 characters of FingerprintToken, enough to
// correlate log lines for one session.
func ShortFingerprint(token string) string {
	if token == "" {
		return ""
	}
	return FingerprintToken(token)[:12]
}
