package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunServer(t *testing.T) {
	t.Run("refuses to start without an escrow public key", func(t *testing.T) {
		t.Setenv("ESCROW_PUBLIC_KEY_PATH", filepath.Join(t.TempDir(), "missing.pub.pem"))

		err := RunServer(context.Background(), "test")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escrow public key")
	})

	t.Run("refuses to start with an unparseable escrow public key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "escrow.pub.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a pem file"), 0o644))
		t.Setenv("ESCROW_PUBLIC_KEY_PATH", path)

		err := RunServer(context.Background(), "test")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "escrow public key")
	})
}
