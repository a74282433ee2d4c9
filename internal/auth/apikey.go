package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// APIKeyPrefix marks conveyor keys so they are recognizable in
	// machine startup files and support logs.
	APIKeyPrefix = "cc_"

	// apiKeyEntropyBytes is the random payload length before encoding.
	apiKeyEntropyBytes = 32
)

// GenerateAPIKey returns a new random key. The raw value is shown to the
// user once; only its hash is stored.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashAPIKey returns the hex SHA-256 digest used for storage and lookup.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CompareAPIKey checks a raw key against a stored hash in constant time.
func CompareAPIKey(raw, storedHash string) bool {
	if raw == "" || storedHash == "" {
		return false
	}
	computed := HashAPIKey(raw)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// KeyPrefix returns the first six characters of a raw key for UI hints.
func KeyPrefix(raw string) string {
	if len(raw) >= 6 {
		return raw[:6]
	}
	return raw
}

// KeySuffix returns the last four characters of a raw key for UI hints.
func KeySuffix(raw string) string {
	if len(raw) >= 4 {
		return raw[len(raw)-4:]
	}
	return raw
}
