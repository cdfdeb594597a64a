package service

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
)

var (
	escrowTestKeyOnce sync.Once
	escrowTestKey     *rsa.PrivateKey
)

// testEscrowKey generates the RSA-3072 key pair once per test run.
func testEscrowKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	escrowTestKeyOnce.Do(func() {
		var err error
		escrowTestKey, err = rsa.GenerateKey(rand.Reader, 3072)
		if err != nil {
			t.Fatalf("failed to generate escrow key: %v", err)
		}
	})
	return escrowTestKey
}

func TestEscrowService(t *testing.T) {
	service := NewEscrowService()
	key := testEscrowKey(t)

	t.Run("wrap and unwrap round trip", func(t *testing.T) {
		dek := randomKey(t)

		token, err := service.Wrap(dek, &key.PublicKey)
		require.NoError(t, err)

		recovered, err := service.Unwrap(token, key)
		require.NoError(t, err)
		assert.Equal(t, dek, recovered)
	})

	t.Run("two wraps of the same dek differ", func(t *testing.T) {
		dek := randomKey(t)

		first, err := service.Wrap(dek, &key.PublicKey)
		require.NoError(t, err)
		second, err := service.Wrap(dek, &key.PublicKey)
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("rejects wrong dek size", func(t *testing.T) {
		_, err := service.Wrap(make([]byte, 16), &key.PublicKey)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
	})

	t.Run("rejects undersized escrow key", func(t *testing.T) {
		small, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		_, err = service.Wrap(randomKey(t), &small.PublicKey)
		assert.ErrorIs(t, err, cryptoDomain.ErrEscrowKeyTooSmall)
	})

	t.Run("unwrap of garbage fails", func(t *testing.T) {
		_, err := service.Unwrap("not base64!", key)
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)

		token, err := service.Wrap(randomKey(t), &key.PublicKey)
		require.NoError(t, err)

		other, err := rsa.GenerateKey(rand.Reader, 3072)
		require.NoError(t, err)
		_, err = service.Unwrap(token, other)
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
	})
}

func writePublicKeyPEM(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()

	raw, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "escrow.pub.pem")
	encoded := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: raw})
	require.NoError(t, os.WriteFile(path, encoded, 0o600))
	return path
}

func TestLoadEscrowPublicKey(t *testing.T) {
	key := testEscrowKey(t)

	t.Run("loads a valid key", func(t *testing.T) {
		path := writePublicKeyPEM(t, &key.PublicKey)

		pub, err := LoadEscrowPublicKey(path)
		require.NoError(t, err)
		assert.Equal(t, key.PublicKey.N, pub.N)
	})

	t.Run("missing file is escrow unavailable", func(t *testing.T) {
		_, err := LoadEscrowPublicKey(filepath.Join(t.TempDir(), "missing.pem"))
		assert.ErrorIs(t, err, cryptoDomain.ErrEscrowUnavailable)
	})

	t.Run("garbage file is escrow unavailable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a pem"), 0o600))

		_, err := LoadEscrowPublicKey(path)
		assert.ErrorIs(t, err, cryptoDomain.ErrEscrowUnavailable)
	})

	t.Run("undersized key is rejected", func(t *testing.T) {
		small, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		path := writePublicKeyPEM(t, &small.PublicKey)

		_, err = LoadEscrowPublicKey(path)
		assert.ErrorIs(t, err, cryptoDomain.ErrEscrowKeyTooSmall)
	})
}

func TestLoadEscrowPrivateKey(t *testing.T) {
	key := testEscrowKey(t)

	t.Run("round trips a passphrase-protected key", func(t *testing.T) {
		raw, err := pkcs8.MarshalPrivateKey(key, []byte("correct horse"), nil)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "escrow.pem")
		encoded := pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: raw})
		require.NoError(t, os.WriteFile(path, encoded, 0o600))

		loaded, err := LoadEscrowPrivateKey(path, []byte("correct horse"))
		require.NoError(t, err)
		assert.Equal(t, key.D, loaded.D)

		_, err = LoadEscrowPrivateKey(path, []byte("wrong"))
		assert.Error(t, err)
	})

	t.Run("round trips an unprotected key", func(t *testing.T) {
		raw, err := pkcs8.MarshalPrivateKey(key, nil, nil)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "escrow.pem")
		encoded := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: raw})
		require.NoError(t, os.WriteFile(path, encoded, 0o600))

		loaded, err := LoadEscrowPrivateKey(path, nil)
		require.NoError(t, err)
		assert.Equal(t, key.D, loaded.D)
	})
}
