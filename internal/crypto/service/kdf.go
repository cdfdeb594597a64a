package service

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
)

// KdfIterations is the fixed PBKDF2 iteration count for password-based key
// derivation. Changing it invalidates every stored user-wrapped DEK, so it is
// a constant rather than configuration.
const KdfIterations = 600_000

// DeriveKey derives a 32-byte symmetric key from a password and salt using
// PBKDF2-HMAC-SHA256 with KdfIterations iterations.
//
// The function is deterministic: the same password and salt always produce the
// same key. The salt must be exactly 16 bytes; everything else, including an
// empty password, is a derivable input. Rejecting weak passwords is a policy
// decision that belongs to callers, not to this unit.
func DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(salt) != cryptoDomain.SaltSize {
		return nil, cryptoDomain.ErrInvalidSaltSize
	}

	return pbkdf2.Key([]byte(password), salt, KdfIterations, cryptoDomain.DekSize, sha256.New), nil
}
