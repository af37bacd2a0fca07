package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// KeyVerifier checks presented API keys against the configured bcrypt
// hashes. Keys are opaque strings; only hashes live in config.
type KeyVerifier struct {
	hashes [][]byte
}

// NewKeyVerifier creates a verifier from bcrypt hash strings
func NewKeyVerifier(hashes []string) *KeyVerifier {
	v := &KeyVerifier{hashes: make([][]byte, 0, len(hashes))}
	for _, h := range hashes {
		if h == "" {
			continue
		}
		v.hashes = append(v.hashes, []byte(h))
	}
	return v
}

// Verify reports whether the presented key matches any configured hash
func (v *KeyVerifier) Verify(key string) bool {
	if key == "" {
		return false
	}
	for _, hash := range v.hashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			return true
		}
	}
	return false
}

// Enabled reports whether any keys are configured
func (v *KeyVerifier) Enabled() bool {
	return len(v.hashes) > 0
}

// HashAPIKey produces a bcrypt hash suitable for the auth.api_keys config list
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("api key must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	return string(hash), nil
}
