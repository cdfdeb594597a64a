package service

import (
	"encoding/base64"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
)

// gcmNonceSize is the AES-GCM nonce length prepended to every sealed token.
const gcmNonceSize = 12

// TokenCodecService implements TokenCodec using AES-256-GCM.
//
// Seal output is a single opaque string: base64(nonce ‖ ciphertext ‖ tag).
// This is the wire and storage form for every encrypted artifact the engine
// produces (wrapped DEKs, encrypted field blobs, cached split-DEK parts).
type TokenCodecService struct{}

// NewTokenCodec creates a new TokenCodecService.
func NewTokenCodec() *TokenCodecService {
	return &TokenCodecService{}
}

// Seal encrypts plaintext under a 32-byte key and returns a base64 token.
//
// A fresh random nonce is generated per call, so two seals of identical
// plaintext under the same key always differ.
func (t *TokenCodecService) Seal(plaintext, key []byte) (string, error) {
	aead, err := NewAESGCM(key)
	if err != nil {
		return "", cryptoDomain.ErrInvalidKeySize
	}

	ciphertext, nonce, err := aead.Encrypt(plaintext, nil)
	if err != nil {
		return "", err
	}

	buf := make([]byte, 0, len(nonce)+len(ciphertext))
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)

	return base64.StdEncoding.EncodeToString(buf), nil
}

// Open decrypts a token produced by Seal.
//
// Every failure mode (invalid base64, token too short to contain a nonce,
// authentication tag mismatch) surfaces as ErrAuthenticationFailed: callers
// must not be able to distinguish tampering from a wrong key.
func (t *TokenCodecService) Open(token string, key []byte) ([]byte, error) {
	aead, err := NewAESGCM(key)
	if err != nil {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}
	if len(raw) < gcmNonceSize {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}

	plaintext, err := aead.Decrypt(raw[gcmNonceSize:], raw[:gcmNonceSize], nil)
	if err != nil {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}

	return plaintext, nil
}
