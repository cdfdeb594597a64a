package service

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
)

// escrowMinBits is the minimum RSA modulus size accepted for escrow key pairs.
const escrowMinBits = 3072

// EscrowService implements EscrowWrapper using RSA-OAEP with SHA-256.
//
// The escrow mechanism lets a designated administrator recover any identity's
// DEK offline, independently of the owning user's password. The server process
// holds only the public key; the private half lives in a passphrase-protected
// PKCS#8 PEM file that is only ever read by the offline admin-unwrap tool.
type EscrowService struct{}

// NewEscrowService creates a new EscrowService.
func NewEscrowService() *EscrowService {
	return &EscrowService{}
}

// Wrap encrypts a 32-byte DEK under the administrator public key using
// RSA-OAEP with SHA-256 and returns a base64 token.
//
// OAEP's internal randomness makes the output differ across calls for the
// same DEK; the token length is fixed by the RSA modulus.
func (e *EscrowService) Wrap(dek []byte, pub *rsa.PublicKey) (string, error) {
	if len(dek) != cryptoDomain.DekSize {
		return "", cryptoDomain.ErrInvalidKeySize
	}
	if pub.N.BitLen() < escrowMinBits {
		return "", cryptoDomain.ErrEscrowKeyTooSmall
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, dek, nil)
	if err != nil {
		return "", fmt.Errorf("failed to wrap DEK with escrow key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Unwrap recovers a DEK from an escrow token using the administrator private
// key. It is intentionally never invoked by the server process; only the
// offline admin-unwrap command calls it.
func (e *EscrowService) Unwrap(token string, priv *rsa.PrivateKey) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}

	dek, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}
	if len(dek) != cryptoDomain.DekSize {
		cryptoDomain.Zero(dek)
		return nil, cryptoDomain.ErrAuthenticationFailed
	}

	return dek, nil
}

// LoadEscrowPublicKey reads a PKIX PEM public key from path.
//
// Any failure (missing file, bad PEM, non-RSA key, modulus below 3072 bits)
// returns ErrEscrowUnavailable. Startup must treat this as fatal: running
// without escrow capability would silently make every identity created from
// that point on unrecoverable by the administrator.
func LoadEscrowPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrEscrowUnavailable, err)
	}

	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("%w: no PUBLIC KEY PEM block in %s", cryptoDomain.ErrEscrowUnavailable, path)
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrEscrowUnavailable, err)
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: key in %s is not RSA", cryptoDomain.ErrEscrowUnavailable, path)
	}
	if pub.N.BitLen() < escrowMinBits {
		return nil, fmt.Errorf(
			"%w: %d-bit key below %d-bit minimum",
			cryptoDomain.ErrEscrowKeyTooSmall,
			pub.N.BitLen(),
			escrowMinBits,
		)
	}

	return pub, nil
}

// LoadEscrowPrivateKey reads a passphrase-protected PKCS#8 PEM private key
// from path. Used only by the offline admin-unwrap tool; the server process
// never loads the private half.
func LoadEscrowPrivateKey(path string, passphrase []byte) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read escrow private key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	var parsed any
	if len(passphrase) > 0 {
		parsed, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, passphrase)
	} else {
		parsed, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow private key: %w", err)
	}

	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key in %s is not RSA", path)
	}

	return priv, nil
}
