// Package service provides the cryptographic engine for per-identity envelope
// encryption: password-based key derivation, AEAD sealing, administrator RSA
// escrow, DEK lifecycle, split custody, and the encrypted field codec.
package service

import (
	"crypto/rsa"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// TokenCodec seals byte payloads into single opaque base64 tokens and opens
// them again. The token form (nonce ‖ ciphertext ‖ tag) is what the record
// store actually persists.
type TokenCodec interface {
	// Seal encrypts plaintext under a 32-byte key and returns a base64 token.
	Seal(plaintext, key []byte) (string, error)

	// Open decrypts a token produced by Seal. Returns ErrAuthenticationFailed
	// on tampering, wrong key, or malformed tokens.
	Open(token string, key []byte) ([]byte, error)
}

// EscrowWrapper wraps and unwraps DEKs under the administrator's RSA key pair.
// The server process holds only the public half; Unwrap exists for the offline
// administrator tool and is never invoked server-side.
type EscrowWrapper interface {
	// Wrap encrypts a 32-byte DEK under the administrator public key using
	// RSA-OAEP with SHA-256. Returns a base64 token.
	Wrap(dek []byte, pub *rsa.PublicKey) (string, error)

	// Unwrap recovers a DEK from an escrow token using the administrator
	// private key. Offline use only.
	Unwrap(token string, priv *rsa.PrivateKey) ([]byte, error)
}

// KeyManager manages the DEK lifecycle for an identity: creation of the three
// persisted wrapping artifacts, password-based unwrap, and re-wrap on password
// change.
type KeyManager interface {
	// CreateIdentityKeys generates a fresh DEK and returns the salt,
	// user-wrapped DEK, and admin-wrapped DEK for a new identity.
	CreateIdentityKeys(password string) (cryptoDomain.KeyEnvelope, error)

	// UnwrapUserDek recovers the plaintext DEK from the user-wrapped form.
	UnwrapUserDek(password, salt, userWrappedDek string) ([]byte, error)

	// ChangePassword re-wraps the DEK under a new password and a fresh salt.
	// The admin-wrapped DEK and all data encrypted under the DEK are untouched.
	ChangePassword(oldPassword, newPassword, salt, userWrappedDek string) (newSalt, newWrapped string, err error)
}

// SplitCustody divides a DEK into a server part and a client part for the
// balanced trust tier, and reconstructs the DEK from both halves.
type SplitCustody interface {
	// Split divides a 32-byte DEK into two base64-encoded halves.
	Split(dek []byte) (cryptoDomain.SplitDek, error)

	// Reconstruct recombines the two halves into the original DEK.
	Reconstruct(serverPart, clientPart string) ([]byte, error)
}

// FieldCodec serializes a typed field record to JSON and seals it under a DEK,
// and the reverse. Application records persist only the sealed token.
type FieldCodec interface {
	// EncryptFields marshals the record and seals it under the DEK.
	EncryptFields(record any, dek []byte) (string, error)

	// DecryptFields opens the token under the DEK and unmarshals into out.
	DecryptFields(token string, dek []byte, out any) error
}
