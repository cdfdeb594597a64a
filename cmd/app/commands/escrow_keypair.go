package commands

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"

	"github.com/youmark/pkcs8"
)

// escrowKeypairMinBits is the smallest RSA modulus accepted for a new escrow key pair.
const escrowKeypairMinBits = 3072

// RunCreateEscrowKeypair generates the administrator escrow RSA key pair.
//
// The public half is written as a PKIX PEM file and configured on the server via
// ESCROW_PUBLIC_KEY_PATH. The private half is written as a passphrase-protected
// PKCS#8 PEM file that must be stored offline; only the admin-unwrap command
// ever reads it. Existing files are never overwritten.
func RunCreateEscrowKeypair(
	writer io.Writer,
	bits int,
	privateKeyPath, publicKeyPath string,
	passphrase []byte,
) error {
	if bits < escrowKeypairMinBits {
		return fmt.Errorf("escrow key must be at least %d bits, got %d", escrowKeypairMinBits, bits)
	}
	if len(passphrase) == 0 {
		return fmt.Errorf("a passphrase is required to protect the escrow private key")
	}

	for _, path := range []string{privateKeyPath, publicKeyPath} {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("refusing to overwrite existing file: %s", path)
		}
	}

	fmt.Fprintf(writer, "# Generating %d-bit RSA escrow key pair, this can take a while\n", bits)

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("failed to generate escrow key pair: %w", err)
	}

	privateDER, err := pkcs8.MarshalPrivateKey(key, passphrase, nil)
	if err != nil {
		return fmt.Errorf("failed to encrypt escrow private key: %w", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: privateDER})
	if err := os.WriteFile(privateKeyPath, privatePEM, 0o600); err != nil {
		return fmt.Errorf("failed to write escrow private key: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to encode escrow public key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	if err := os.WriteFile(publicKeyPath, publicPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write escrow public key: %w", err)
	}

	fmt.Fprintln(writer)
	fmt.Fprintf(writer, "# Escrow private key written to %s\n", privateKeyPath)
	fmt.Fprintln(writer, "# Move it to offline storage now; the server must never have access to it.")
	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "# Server configuration:")
	fmt.Fprintf(writer, "ESCROW_PUBLIC_KEY_PATH=\"%s\"\n", publicKeyPath)

	return nil
}
