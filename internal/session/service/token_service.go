// Package service provides session-related services for bearer token generation.
package service

import (
	"crypto/rand"
	"encoding/base64"

	apperrors "github.com/allisson/fieldvault/internal/errors"
)

// TokenService generates opaque bearer tokens.
type TokenService interface {
	// GenerateToken creates a new cryptographically secure random token.
	GenerateToken() (string, error)
}

// tokenService implements TokenService using crypto/rand.
type tokenService struct{}

// GenerateToken creates a new cryptographically secure 32-byte random token.
// The token is base64 URL-encoded for easy transmission and storage; it is the
// cache-store key for the session entry, so it is never logged.
func (t *tokenService) GenerateToken() (string, error) {
	// Generate 32 random bytes (256 bits)
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", apperrors.Wrap(err, "failed to generate random token")
	}

	return base64.URLEncoding.EncodeToString(randomBytes), nil
}

// NewTokenService creates a new TokenService instance.
func NewTokenService() TokenService {
	return &tokenService{}
}
