package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HasPrefix reports whether parts starts with every element of prefix, compared
// element by element. An empty prefix matches everything.
func HasPrefix(parts, prefix []string) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i := range prefix {
		if parts[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Fingerprint returns a short stable hex digest of s (first 8 bytes of SHA-256).
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
