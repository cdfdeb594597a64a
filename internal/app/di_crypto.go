package app

import (
	"context"
	"crypto/rsa"
	"fmt"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldvault/internal/crypto/service"
	apperrors "github.com/allisson/fieldvault/internal/errors"
)

// KMSService returns the KMS service used to unwrap server-local cache keys.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// CacheKeyChain returns the server-local cache key chain.
func (c *Container) CacheKeyChain() (*cryptoDomain.CacheKeyChain, error) {
	var err error
	c.cacheKeyChainInit.Do(func() {
		c.cacheKeyChain, err = c.initCacheKeyChain()
		if err != nil {
			c.initErrors["cacheKeyChain"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["cacheKeyChain"]; exists {
		return nil, storedErr
	}
	return c.cacheKeyChain, nil
}

// EscrowPublicKey returns the administrator escrow public key. The server
// refuses to start without it: identities created while escrow is missing
// would be unrecoverable on password loss.
func (c *Container) EscrowPublicKey() (*rsa.PublicKey, error) {
	var err error
	c.escrowPubKeyInit.Do(func() {
		c.escrowPubKey, err = cryptoService.LoadEscrowPublicKey(c.config.EscrowPublicKeyPath)
		if err != nil {
			c.initErrors["escrowPubKey"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["escrowPubKey"]; exists {
		return nil, storedErr
	}
	return c.escrowPubKey, nil
}

// AEADManager returns the AEAD manager service.
func (c *Container) AEADManager() cryptoService.AEADManager {
	c.aeadManagerInit.Do(func() {
		c.aeadManager = cryptoService.NewAEADManager()
	})
	return c.aeadManager
}

// TokenCodec returns the token codec service.
func (c *Container) TokenCodec() cryptoService.TokenCodec {
	c.tokenCodecInit.Do(func() {
		c.tokenCodec = cryptoService.NewTokenCodec()
	})
	return c.tokenCodec
}

// EscrowService returns the RSA-OAEP escrow wrapper.
func (c *Container) EscrowService() cryptoService.EscrowWrapper {
	c.escrowServiceInit.Do(func() {
		c.escrowService = cryptoService.NewEscrowService()
	})
	return c.escrowService
}

// KeyManager returns the key manager service.
func (c *Container) KeyManager() (cryptoService.KeyManager, error) {
	var err error
	c.keyManagerInit.Do(func() {
		c.keyManager, err = c.initKeyManager()
		if err != nil {
			c.initErrors["keyManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyManager"]; exists {
		return nil, storedErr
	}
	return c.keyManager, nil
}

// SplitCustody returns the split custody service.
func (c *Container) SplitCustody() cryptoService.SplitCustody {
	c.splitCustodyInit.Do(func() {
		c.splitCustody = cryptoService.NewSplitCustody()
	})
	return c.splitCustody
}

// FieldCodec returns the encrypted field codec.
func (c *Container) FieldCodec() cryptoService.FieldCodec {
	c.fieldCodecInit.Do(func() {
		c.fieldCodec = cryptoService.NewFieldCodec(c.TokenCodec())
	})
	return c.fieldCodec
}

// initCacheKeyChain loads the cache key chain from the environment, unwrapping
// each entry through the configured KMS keeper. Without KMS configuration it
// falls back to an ephemeral key: split-custody sessions then do not survive a
// process restart, which is acceptable for development but logged loudly.
func (c *Container) initCacheKeyChain() (*cryptoDomain.CacheKeyChain, error) {
	logger := c.Logger()
	ctx := context.Background()

	if c.config.KMSKeyURI == "" {
		logger.Warn("KMS_KEY_URI not set, using an ephemeral cache key; split-custody sessions will not survive restarts")
		chain, err := cryptoDomain.NewEphemeralCacheKeyChain(cryptoDomain.AESGCM)
		if err != nil {
			return nil, fmt.Errorf("failed to create ephemeral cache key chain: %w", err)
		}
		return chain, nil
	}

	keeper, err := c.KMSService().OpenKeeper(ctx, c.config.KMSKeyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			logger.Warn("failed to close KMS keeper", "error", closeErr)
		}
	}()

	chain, err := cryptoDomain.LoadCacheKeyChainFromEnv(ctx, keeper)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load cache key chain")
	}
	return chain, nil
}

// initKeyManager creates the key manager bound to the escrow public key.
func (c *Container) initKeyManager() (cryptoService.KeyManager, error) {
	escrowPub, err := c.EscrowPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow public key: %w", err)
	}

	keyManager, err := cryptoService.NewKeyManager(c.TokenCodec(), c.EscrowService(), escrowPub)
	if err != nil {
		return nil, fmt.Errorf("failed to create key manager: %w", err)
	}
	return keyManager, nil
}
