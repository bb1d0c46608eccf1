// Package apikey manages the portal's trusted-integration API keys. Keys
// are distributed out of band; only bcrypt hashes are configured on the
// server.
package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "vouch/pkg/domain-errors"
)

// Generate creates a cryptographically secure random API key.
// Returns a base64-encoded string for out-of-band distribution.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash creates a bcrypt hash of the provided key for server-side storage.
func Hash(key string) (string, error) {
	if key == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "api key cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "api key is too long")
		}
		return "", fmt.Errorf("could not hash api key: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a plaintext key against a bcrypt hash.
func Verify(key, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid api key")
		}
		return fmt.Errorf("could not verify api key: %w", err)
	}
	return nil
}

// Keyring holds the configured key hashes and answers membership checks.
type Keyring struct {
	hashes []string
}

func NewKeyring(hashes []string) *Keyring {
	return &Keyring{hashes: hashes}
}

// Validate reports whether the key matches any configured hash.
func (k *Keyring) Validate(key string) bool {
	if key == "" {
		return false
	}
	for _, hash := range k.hashes {
		if Verify(key, hash) == nil {
			return true
		}
	}
	return false
}
