package commands

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	cryptoService "github.com/allisson/fieldvault/internal/crypto/service"
)

func TestRunCreateEscrowKeypair(t *testing.T) {
	t.Run("rejects-small-modulus", func(t *testing.T) {
		err := RunCreateEscrowKeypair(&bytes.Buffer{}, 2048, "priv.pem", "pub.pem", []byte("passphrase"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "at least 3072 bits")
	})

	t.Run("requires-passphrase", func(t *testing.T) {
		err := RunCreateEscrowKeypair(&bytes.Buffer{}, 3072, "priv.pem", "pub.pem", nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "passphrase is required")
	})

	t.Run("generates-usable-keypair", func(t *testing.T) {
		dir := t.TempDir()
		privPath := filepath.Join(dir, "escrow.pem")
		pubPath := filepath.Join(dir, "escrow.pub.pem")
		passphrase := []byte("correct horse")

		var out bytes.Buffer
		err := RunCreateEscrowKeypair(&out, 3072, privPath, pubPath, passphrase)
		require.NoError(t, err)
		require.Contains(t, out.String(), "ESCROW_PUBLIC_KEY_PATH=")

		// Refuses to overwrite the key pair it just wrote
		err = RunCreateEscrowKeypair(&out, 3072, privPath, pubPath, passphrase)
		require.Error(t, err)
		require.Contains(t, err.Error(), "refusing to overwrite")

		// The public half wraps a DEK and admin-unwrap recovers it offline
		pub, err := cryptoService.LoadEscrowPublicKey(pubPath)
		require.NoError(t, err)

		dek := make([]byte, 32)
		_, err = rand.Read(dek)
		require.NoError(t, err)

		wrapped, err := cryptoService.NewEscrowService().Wrap(dek, pub)
		require.NoError(t, err)

		var unwrapOut bytes.Buffer
		err = RunAdminUnwrap(&unwrapOut, wrapped, privPath, passphrase)
		require.NoError(t, err)
		require.Contains(t, unwrapOut.String(), base64.StdEncoding.EncodeToString(dek))

		// Wrong passphrase must not recover anything
		err = RunAdminUnwrap(&bytes.Buffer{}, wrapped, privPath, []byte("wrong"))
		require.Error(t, err)
	})
}

func TestRunAdminUnwrap(t *testing.T) {
	t.Run("requires-wrapped-token", func(t *testing.T) {
		err := RunAdminUnwrap(&bytes.Buffer{}, "", "escrow.pem", []byte("passphrase"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "--wrapped is required")
	})

	t.Run("missing-private-key", func(t *testing.T) {
		err := RunAdminUnwrap(&bytes.Buffer{}, "dG9rZW4=", "/nonexistent/escrow.pem", []byte("passphrase"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to load escrow private key")
	})
}
