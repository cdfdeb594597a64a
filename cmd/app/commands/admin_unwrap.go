package commands

import (
	"encoding/base64"
	"fmt"
	"io"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldvault/internal/crypto/service"
)

// RunAdminUnwrap recovers an identity's DEK from its escrow wrap token.
//
// This is the offline half of the escrow mechanism: it loads the
// passphrase-protected escrow private key and unwraps the RSA-OAEP token taken
// from the identity record, printing the DEK as base64. It never touches the
// database or the cache store, so it can run on an air-gapped machine.
func RunAdminUnwrap(writer io.Writer, wrappedToken, privateKeyPath string, passphrase []byte) error {
	if wrappedToken == "" {
		return fmt.Errorf("--wrapped is required: the admin_wrapped_dek value from the identity record")
	}

	privateKey, err := cryptoService.LoadEscrowPrivateKey(privateKeyPath, passphrase)
	if err != nil {
		return fmt.Errorf("failed to load escrow private key: %w", err)
	}

	escrow := cryptoService.NewEscrowService()
	dek, err := escrow.Unwrap(wrappedToken, privateKey)
	if err != nil {
		return fmt.Errorf("failed to unwrap DEK: %w", err)
	}
	defer cryptoDomain.Zero(dek)

	fmt.Fprintln(writer, "# Recovered DEK (base64). Handle as a live secret and discard after use.")
	fmt.Fprintln(writer, base64.StdEncoding.EncodeToString(dek))

	return nil
}
