package domain

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// CacheKey is a server-local symmetric key used to encrypt the server-held half
// of a split DEK before it is written to the cache store.
//
// Cache keys never leave the process: they are loaded at startup from
// KMS-wrapped environment entries, or generated ephemerally when none are
// configured. An ephemeral key means every balanced-tier session dies on
// process restart, which is an accepted trade-off rather than a bug.
type CacheKey struct {
	ID        string
	Algorithm Algorithm
	Key       []byte
}

// CacheKeyChain manages a collection of cache keys with one designated as
// active. Keeping old keys available lets in-flight cache entries written
// under a previous key decrypt correctly after a rotation.
//
// Thread safety: the chain uses sync.Map internally for concurrent access.
type CacheKeyChain struct {
	activeID string
	keys     sync.Map
}

// ActiveCacheKey returns the key used to encrypt new cache entries.
func (c *CacheKeyChain) ActiveCacheKey() (*CacheKey, bool) {
	return c.Get(c.activeID)
}

// Get retrieves a cache key from the chain by its ID.
func (c *CacheKeyChain) Get(id string) (*CacheKey, bool) {
	if key, ok := c.keys.Load(id); ok {
		return key.(*CacheKey), ok
	}

	return nil, false
}

// Ephemeral reports whether the chain was generated at startup rather than
// loaded from configuration.
func (c *CacheKeyChain) Ephemeral() bool {
	return strings.HasPrefix(c.activeID, "ephemeral-")
}

// Close securely clears all cache keys from memory and resets the chain.
func (c *CacheKeyChain) Close() {
	c.keys.Range(func(key, value any) bool {
		if ck, ok := value.(*CacheKey); ok {
			Zero(ck.Key)
		}
		return true
	})
	c.activeID = ""
	c.keys.Clear()
}

// NewEphemeralCacheKeyChain generates a single random cache key held only in
// process memory. Used when CACHE_KEYS is not configured; callers should log a
// warning because balanced-tier sessions will not survive a restart.
func NewEphemeralCacheKeyChain(alg Algorithm) (*CacheKeyChain, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral cache key: %w", err)
	}

	id := fmt.Sprintf("ephemeral-%s", time.Now().UTC().Format("2006-01-02"))
	chain := &CacheKeyChain{activeID: id}
	chain.keys.Store(id, &CacheKey{ID: id, Algorithm: alg, Key: key})

	return chain, nil
}

// LoadCacheKeyChainFromEnv loads cache keys from environment variables,
// decrypting each entry with the provided KMS keeper.
//
// Configuration format:
//
//	CACHE_KEYS="key1:aes-gcm:<base64-kms-ciphertext>,key2:chacha20-poly1305:<base64-kms-ciphertext>"
//	ACTIVE_CACHE_KEY_ID="key2"
//
// Each decrypted key must be exactly 32 bytes. On error the chain is closed to
// prevent partial initialization.
func LoadCacheKeyChainFromEnv(ctx context.Context, keeper KMSKeeper) (*CacheKeyChain, error) {
	raw := os.Getenv("CACHE_KEYS")
	if raw == "" {
		return nil, ErrCacheKeysNotSet
	}

	active := os.Getenv("ACTIVE_CACHE_KEY_ID")
	if active == "" {
		return nil, ErrActiveCacheKeyIDNotSet
	}

	chain := &CacheKeyChain{activeID: active}

	for part := range strings.SplitSeq(raw, ",") {
		p := strings.SplitN(strings.TrimSpace(part), ":", 3)
		if len(p) != 3 {
			chain.Close()
			return nil, fmt.Errorf("%w: %q", ErrInvalidCacheKeysFormat, part)
		}
		id := p[0]
		alg := Algorithm(p[1])
		if alg != AESGCM && alg != ChaCha20 {
			chain.Close()
			return nil, fmt.Errorf("%w: cache key %s uses %q", ErrUnsupportedAlgorithm, id, p[1])
		}
		ciphertext, err := base64.StdEncoding.DecodeString(p[2])
		if err != nil {
			chain.Close()
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidCacheKeyBase64, id, err)
		}
		key, err := keeper.Decrypt(ctx, ciphertext)
		if err != nil {
			chain.Close()
			return nil, fmt.Errorf("failed to decrypt cache key %s with KMS: %w", id, err)
		}
		if len(key) != 32 {
			Zero(key)
			chain.Close()
			return nil, fmt.Errorf(
				"%w: cache key %s must be 32 bytes, got %d",
				ErrInvalidKeySize,
				id,
				len(key),
			)
		}
		chain.keys.Store(id, &CacheKey{ID: id, Algorithm: alg, Key: key})
	}

	if _, ok := chain.Get(active); !ok {
		chain.Close()
		return nil, fmt.Errorf("%w: ACTIVE_CACHE_KEY_ID=%s", ErrActiveCacheKeyNotFound, active)
	}

	return chain, nil
}
