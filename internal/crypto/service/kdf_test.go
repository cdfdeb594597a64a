package service

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
)

func TestDeriveKey(t *testing.T) {
	salt := make([]byte, cryptoDomain.SaltSize)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	t.Run("same password and salt derive the same key", func(t *testing.T) {
		first, err := DeriveKey("Secret#123", salt)
		require.NoError(t, err)
		second, err := DeriveKey("Secret#123", salt)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, first, cryptoDomain.DekSize)
	})

	t.Run("different salt derives a different key", func(t *testing.T) {
		otherSalt := make([]byte, cryptoDomain.SaltSize)
		_, err := rand.Read(otherSalt)
		require.NoError(t, err)

		first, err := DeriveKey("Secret#123", salt)
		require.NoError(t, err)
		second, err := DeriveKey("Secret#123", otherSalt)
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("empty password is a derivable input", func(t *testing.T) {
		key, err := DeriveKey("", salt)
		require.NoError(t, err)
		assert.Len(t, key, cryptoDomain.DekSize)
	})

	t.Run("wrong salt size is rejected", func(t *testing.T) {
		_, err := DeriveKey("Secret#123", make([]byte, 8))
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidSaltSize)

		_, err = DeriveKey("Secret#123", nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidSaltSize)
	})
}
