package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns a filesystem-safe identifier for an external id such as a chat id.
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ShortHash is the first 12 hex characters of HashKey.
func ShortHash(s string) string {
	return HashKey(s)[:12]
}
