package service

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
)

// KeyManagerService implements the KeyManager interface for per-identity
// envelope encryption.
//
// Each identity owns one DEK wrapped twice:
//   - user wrap: DEK sealed under PBKDF2(password, salt)
//   - admin wrap: DEK encrypted under the administrator's RSA public key
//
// The plaintext DEK exists only in process memory for the duration of a
// request; this service never persists it and callers must zero it after use.
// Rotating the password re-seals the same DEK bytes, so bulk data and the
// escrow copy are never touched.
type KeyManagerService struct {
	codec     TokenCodec
	escrow    EscrowWrapper
	escrowPub *rsa.PublicKey
}

// NewKeyManager creates a new KeyManagerService.
//
// The escrow public key is constructor-injected and required: the server must
// refuse to start without it rather than create identities the administrator
// cannot recover.
func NewKeyManager(codec TokenCodec, escrow EscrowWrapper, escrowPub *rsa.PublicKey) (*KeyManagerService, error) {
	if escrowPub == nil {
		return nil, cryptoDomain.ErrEscrowUnavailable
	}

	return &KeyManagerService{
		codec:     codec,
		escrow:    escrow,
		escrowPub: escrowPub,
	}, nil
}

// CreateIdentityKeys generates a fresh random DEK and produces the three
// stored artifacts for a new identity: salt, user-wrapped DEK, and
// admin-wrapped DEK.
//
// All three fields are returned together and must be persisted atomically by
// the caller; a partially stored envelope is an unrecoverable identity. For a
// given identity the user wrap and the admin wrap always recover the same DEK
// bytes.
func (km *KeyManagerService) CreateIdentityKeys(password string) (cryptoDomain.KeyEnvelope, error) {
	// Generate a random 32-byte DEK
	dek := make([]byte, cryptoDomain.DekSize)
	if _, err := rand.Read(dek); err != nil {
		return cryptoDomain.KeyEnvelope{}, fmt.Errorf("failed to generate DEK: %w", err)
	}
	defer cryptoDomain.Zero(dek)

	// Generate a random 16-byte salt for key derivation
	salt := make([]byte, cryptoDomain.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return cryptoDomain.KeyEnvelope{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	// Derive the wrapping key from the password
	wrappingKey, err := DeriveKey(password, salt)
	if err != nil {
		return cryptoDomain.KeyEnvelope{}, err
	}
	defer cryptoDomain.Zero(wrappingKey)

	// Seal the DEK under the derived key
	userWrapped, err := km.codec.Seal([]byte(base64.StdEncoding.EncodeToString(dek)), wrappingKey)
	if err != nil {
		return cryptoDomain.KeyEnvelope{}, fmt.Errorf("failed to wrap DEK for user: %w", err)
	}

	// Wrap the DEK under the administrator's public key for offline escrow
	adminWrapped, err := km.escrow.Wrap(dek, km.escrowPub)
	if err != nil {
		return cryptoDomain.KeyEnvelope{}, fmt.Errorf("failed to wrap DEK for escrow: %w", err)
	}

	return cryptoDomain.KeyEnvelope{
		Salt:            base64.StdEncoding.EncodeToString(salt),
		UserWrappedDek:  userWrapped,
		AdminWrappedDek: adminWrapped,
	}, nil
}

// UnwrapUserDek recovers the plaintext DEK from the user-wrapped form.
//
// Any failure of the authenticated open (wrong password, tampered or corrupted
// record) surfaces as ErrInvalidCredentials: the two cases must look identical
// externally to avoid oracle leakage. The returned DEK is exactly 32 bytes and
// callers must zero it after use.
func (km *KeyManagerService) UnwrapUserDek(password, salt, userWrappedDek string) ([]byte, error) {
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, cryptoDomain.ErrInvalidCredentials
	}

	wrappingKey, err := DeriveKey(password, rawSalt)
	if err != nil {
		return nil, cryptoDomain.ErrInvalidCredentials
	}
	defer cryptoDomain.Zero(wrappingKey)

	encoded, err := km.codec.Open(userWrappedDek, wrappingKey)
	if err != nil {
		return nil, cryptoDomain.ErrInvalidCredentials
	}

	dek, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil || len(dek) != cryptoDomain.DekSize {
		cryptoDomain.Zero(dek)
		return nil, cryptoDomain.ErrInvalidCredentials
	}

	return dek, nil
}

// ChangePassword re-wraps the DEK under the new password and a fresh salt.
//
// Fails closed with ErrInvalidCredentials when the old password does not
// unwrap the DEK. The same DEK bytes are re-sealed, so the admin-wrapped DEK
// and every field blob encrypted under the DEK remain valid unchanged; this is
// the whole point of envelope encryption.
func (km *KeyManagerService) ChangePassword(
	oldPassword, newPassword, salt, userWrappedDek string,
) (newSalt, newWrapped string, err error) {
	dek, err := km.UnwrapUserDek(oldPassword, salt, userWrappedDek)
	if err != nil {
		return "", "", err
	}
	defer cryptoDomain.Zero(dek)

	rawSalt := make([]byte, cryptoDomain.SaltSize)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}

	wrappingKey, err := DeriveKey(newPassword, rawSalt)
	if err != nil {
		return "", "", err
	}
	defer cryptoDomain.Zero(wrappingKey)

	wrapped, err := km.codec.Seal([]byte(base64.StdEncoding.EncodeToString(dek)), wrappingKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to re-wrap DEK: %w", err)
	}

	return base64.StdEncoding.EncodeToString(rawSalt), wrapped, nil
}
