package service

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
)

func TestSplitCustody(t *testing.T) {
	service := NewSplitCustody()

	t.Run("split and reconstruct recover the dek", func(t *testing.T) {
		dek := randomKey(t)

		split, err := service.Split(dek)
		require.NoError(t, err)
		assert.NotEmpty(t, split.ServerPart)
		assert.NotEmpty(t, split.ClientPart)

		recovered, err := service.Reconstruct(split.ServerPart, split.ClientPart)
		require.NoError(t, err)
		assert.Equal(t, dek, recovered)
	})

	t.Run("server part is freshly drawn per split", func(t *testing.T) {
		dek := randomKey(t)

		first, err := service.Split(dek)
		require.NoError(t, err)
		second, err := service.Split(dek)
		require.NoError(t, err)

		assert.NotEqual(t, first.ServerPart, second.ServerPart)
		assert.NotEqual(t, first.ClientPart, second.ClientPart)

		// Both splits still reconstruct the same DEK.
		fromFirst, err := service.Reconstruct(first.ServerPart, first.ClientPart)
		require.NoError(t, err)
		fromSecond, err := service.Reconstruct(second.ServerPart, second.ClientPart)
		require.NoError(t, err)
		assert.Equal(t, fromFirst, fromSecond)
	})

	t.Run("neither half alone equals the dek", func(t *testing.T) {
		dek := randomKey(t)

		split, err := service.Split(dek)
		require.NoError(t, err)

		server, err := base64.StdEncoding.DecodeString(split.ServerPart)
		require.NoError(t, err)
		client, err := base64.StdEncoding.DecodeString(split.ClientPart)
		require.NoError(t, err)

		assert.NotEqual(t, dek, server)
		assert.NotEqual(t, dek, client)
	})

	t.Run("mismatched halves reconstruct a different key", func(t *testing.T) {
		dek := randomKey(t)

		first, err := service.Split(dek)
		require.NoError(t, err)
		second, err := service.Split(dek)
		require.NoError(t, err)

		wrong, err := service.Reconstruct(first.ServerPart, second.ClientPart)
		require.NoError(t, err)
		assert.NotEqual(t, dek, wrong)
	})

	t.Run("rejects wrong dek size", func(t *testing.T) {
		_, err := service.Split(make([]byte, 16))
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
	})

	t.Run("rejects malformed parts", func(t *testing.T) {
		split, err := service.Split(randomKey(t))
		require.NoError(t, err)

		_, err = service.Reconstruct("not base64!", split.ClientPart)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidSplitPart)

		_, err = service.Reconstruct(split.ServerPart, "not base64!")
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidSplitPart)

		short := base64.StdEncoding.EncodeToString(make([]byte, 16))
		_, err = service.Reconstruct(short, split.ClientPart)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidSplitPart)
	})
}
