package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldvault/internal/crypto/service"
	apperrors "github.com/allisson/fieldvault/internal/errors"
	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
)

// dekCacheUseCase implements DekCacheUseCase. Server parts are encrypted
// under the active server-local cache key before they touch the cache store;
// the stored form is "<key-id>:<base64 nonce+ciphertext>" so entries written
// before a key rotation still decrypt through the chain. The subject ID is
// bound as AAD, which stays stable when a rotation re-keys the entry to a new
// token.
type dekCacheUseCase struct {
	aeadManager  cryptoService.AEADManager
	splitCustody cryptoService.SplitCustody
	keyChain     *cryptoDomain.CacheKeyChain
	dekCacheRepo DekCacheRepository
}

// NewDekCacheUseCase creates a new DekCacheUseCase instance.
func NewDekCacheUseCase(
	aeadManager cryptoService.AEADManager,
	splitCustody cryptoService.SplitCustody,
	keyChain *cryptoDomain.CacheKeyChain,
	dekCacheRepo DekCacheRepository,
) DekCacheUseCase {
	return &dekCacheUseCase{
		aeadManager:  aeadManager,
		splitCustody: splitCustody,
		keyChain:     keyChain,
		dekCacheRepo: dekCacheRepo,
	}
}

// CacheServerPart encrypts the server part under the active cache key and
// stores it for (subjectID, token) with the standard cache TTL.
func (d *dekCacheUseCase) CacheServerPart(
	ctx context.Context,
	subjectID uuid.UUID,
	token, serverPart string,
) error {
	cacheKey, ok := d.keyChain.ActiveCacheKey()
	if !ok {
		return apperrors.Wrap(apperrors.ErrUnavailable, "no active cache key")
	}

	cipher, err := d.aeadManager.CreateCipher(cacheKey.Key, cacheKey.Algorithm)
	if err != nil {
		return err
	}

	rawPart, err := base64.StdEncoding.DecodeString(serverPart)
	if err != nil {
		return apperrors.Wrap(cryptoDomain.ErrInvalidSplitPart, "server part is not valid base64")
	}
	defer cryptoDomain.Zero(rawPart)

	ciphertext, nonce, err := cipher.Encrypt(rawPart, subjectID[:])
	if err != nil {
		return err
	}

	encoded := fmt.Sprintf(
		"%s:%s",
		cacheKey.ID,
		base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)),
	)

	return d.dekCacheRepo.Save(ctx, subjectID, token, encoded, sessionDomain.DekCacheTTL)
}

// ReconstructFromCache decrypts the cached server part and recombines it with
// the client part into the full DEK. The repository read refreshes the entry
// TTL, so an actively used session keeps its cached part alive.
func (d *dekCacheUseCase) ReconstructFromCache(
	ctx context.Context,
	subjectID uuid.UUID,
	token, clientPart string,
) ([]byte, error) {
	encoded, err := d.dekCacheRepo.Get(ctx, subjectID, token, sessionDomain.DekCacheTTL)
	if err != nil {
		return nil, err
	}

	serverPart, err := d.decryptServerPart(encoded, subjectID)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(serverPart)

	return d.splitCustody.Reconstruct(base64.StdEncoding.EncodeToString(serverPart), clientPart)
}

// decryptServerPart decodes a stored "<key-id>:<base64>" entry and decrypts
// it through the key chain.
func (d *dekCacheUseCase) decryptServerPart(encoded string, subjectID uuid.UUID) ([]byte, error) {
	keyID, payload, found := strings.Cut(encoded, ":")
	if !found {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "malformed dek cache entry")
	}

	cacheKey, ok := d.keyChain.Get(keyID)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("unknown cache key %q", keyID))
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "malformed dek cache entry")
	}

	// Both supported algorithms use 12-byte nonces.
	const nonceSize = 12
	if len(raw) <= nonceSize {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "malformed dek cache entry")
	}

	cipher, err := d.aeadManager.CreateCipher(cacheKey.Key, cacheKey.Algorithm)
	if err != nil {
		return nil, err
	}

	return cipher.Decrypt(raw[nonceSize:], raw[:nonceSize], subjectID[:])
}
