// Package domain defines the core cryptographic domain models for envelope encryption.
//
// Each identity owns a single Data Encryption Key (DEK) that directly encrypts its
// sensitive fields. The DEK is never persisted in plaintext; it is stored twice in
// wrapped form: once under a key derived from the user's password (PBKDF2 + AEAD)
// and once under the administrator's RSA public key for offline escrow recovery.
// Supports AESGCM and ChaCha20 algorithms with 256-bit keys.
package domain

import "context"

const (
	// DekSize is the size in bytes of a Data Encryption Key (256 bits).
	DekSize = 32

	// SaltSize is the size in bytes of the random salt used for password-based
	// key derivation.
	SaltSize = 16
)

// KeyEnvelope holds the three persisted artifacts produced when an identity's
// DEK is created. All fields are base64-encoded strings ready for storage.
//
// The three fields must be persisted atomically: a partially stored envelope
// (e.g., salt without the user-wrapped DEK) is an unrecoverable identity.
type KeyEnvelope struct {
	// Salt is the random 16-byte salt for password-based key derivation.
	Salt string
	// UserWrappedDek is the DEK sealed under a key derived from the user's
	// password. Mutated only on password change.
	UserWrappedDek string
	// AdminWrappedDek is the DEK wrapped under the administrator's RSA public
	// key. Set once at identity creation and constant thereafter, so escrow
	// access survives password changes.
	AdminWrappedDek string
}

// SplitDek holds the two halves of a DEK divided for the balanced trust tier.
// Neither half alone reveals any information about the DEK (one-time pad).
// Both halves are base64-encoded.
type SplitDek struct {
	// ServerPart is the randomly drawn half held server-side, encrypted at
	// rest under the server-local cache key.
	ServerPart string
	// ClientPart is the half returned to the client (DEK XOR ServerPart).
	ClientPart string
}

// KMSKeeper abstracts a gocloud.dev secrets keeper for decrypting the
// KMS-wrapped server-local cache keys at startup.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
