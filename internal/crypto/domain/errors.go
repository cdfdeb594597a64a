package domain

import (
	"github.com/allisson/fieldvault/internal/errors"
)

// Cryptographic operation error definitions.
//
// These domain-specific errors wrap standard errors from internal/errors to
// form a closed taxonomy: callers match them with errors.Is instead of string
// comparison. Error messages never include key material.
var (
	// ErrUnsupportedAlgorithm indicates the requested encryption algorithm is not supported.
	//
	// Supported algorithms: AESGCM (AES-256-GCM), ChaCha20 (ChaCha20-Poly1305)
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates the cryptographic key size is invalid.
	//
	// All symmetric keys (DEKs and cache keys) must be exactly 32 bytes
	// (256 bits) for both AES-256-GCM and ChaCha20-Poly1305.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrInvalidSaltSize indicates the key-derivation salt is not exactly 16 bytes.
	ErrInvalidSaltSize = errors.Wrap(errors.ErrInvalidInput, "invalid salt size")

	// ErrAuthenticationFailed indicates an AEAD open operation failed.
	//
	// This can occur due to:
	//   - Wrong decryption key used
	//   - Ciphertext has been tampered with (tag mismatch)
	//   - Token is not valid base64 or too short to contain a nonce
	//
	// For security reasons, the specific cause is not disclosed to prevent
	// information leakage that could aid attackers.
	ErrAuthenticationFailed = errors.Wrap(errors.ErrInvalidInput, "authentication failed")

	// ErrInvalidCredentials indicates a password-based DEK unwrap failed.
	//
	// Deliberately indistinguishable between "wrong password" and "corrupted
	// record": both surface as this error to avoid giving callers an oracle.
	ErrInvalidCredentials = errors.Wrap(errors.ErrUnauthorized, "invalid credentials")

	// ErrInvalidSplitPart indicates a split-DEK half has the wrong length or
	// is not valid base64.
	ErrInvalidSplitPart = errors.Wrap(errors.ErrInvalidInput, "invalid split part")

	// ErrEscrowUnavailable indicates the administrator escrow public key is
	// missing or unparseable. This is fatal at startup: running without escrow
	// capability would silently make future identities unrecoverable by the
	// administrator.
	ErrEscrowUnavailable = errors.Wrap(errors.ErrUnavailable, "escrow public key unavailable")

	// ErrEscrowKeyTooSmall indicates the administrator RSA key is below the
	// 3072-bit minimum.
	ErrEscrowKeyTooSmall = errors.Wrap(errors.ErrInvalidInput, "escrow key below 3072-bit minimum")
)

// Cache key chain configuration errors.
var (
	// ErrCacheKeysNotSet indicates the CACHE_KEYS environment variable is not configured.
	ErrCacheKeysNotSet = errors.New("CACHE_KEYS environment variable not set")

	// ErrActiveCacheKeyIDNotSet indicates ACTIVE_CACHE_KEY_ID is not configured.
	ErrActiveCacheKeyIDNotSet = errors.New("ACTIVE_CACHE_KEY_ID environment variable not set")

	// ErrInvalidCacheKeysFormat indicates a CACHE_KEYS entry is not in "id:algorithm:base64" format.
	ErrInvalidCacheKeysFormat = errors.Wrap(errors.ErrInvalidInput, "invalid CACHE_KEYS format")

	// ErrInvalidCacheKeyBase64 indicates a cache key ciphertext failed base64 decoding.
	ErrInvalidCacheKeyBase64 = errors.Wrap(errors.ErrInvalidInput, "invalid cache key base64")

	// ErrActiveCacheKeyNotFound indicates ACTIVE_CACHE_KEY_ID references a key
	// that is not present in CACHE_KEYS.
	ErrActiveCacheKeyNotFound = errors.Wrap(errors.ErrNotFound, "active cache key not found")
)
