// Package repository implements the session cache-store repositories on
// Redis. Every key namespace the engine uses lives here:
//
//	session:<token>            serialized session entry
//	subject_sessions:<subject> token index for broadcast invalidation
//	dek:<subject>:<token>      encrypted server-held split-DEK part
//	blacklist:<token>          presence-only deny marker
//	reg_token:<token>          single-use registration grant
//	lock:*                     short-lived distributed locks
//	lockout:<subject>          failed-login counter
//	reg_rate:<ip>              registration-grant issuance counter
//
// Mutations rely on Redis-native atomic primitives (SET NX, GETDEL, INCR)
// rather than client-side check-then-act, because concurrent requests for the
// same subject are expected.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/allisson/fieldvault/internal/errors"
)

// Key prefixes for the cache-store namespaces.
const (
	sessionKeyPrefix      = "session:"
	subjectIndexKeyPrefix = "subject_sessions:"
	dekKeyPrefix          = "dek:"
	blacklistKeyPrefix    = "blacklist:"
	regTokenKeyPrefix     = "reg_token:"
	lockKeyPrefix         = "lock:"
)

// getWithRetry performs a read, retrying exactly once on transport errors.
// Cache misses (redis.Nil) are returned immediately; only network-level
// failures qualify for the retry.
func getWithRetry(ctx context.Context, client redis.UniversalClient, key string) (string, error) {
	value, err := client.Get(ctx, key).Result()
	if err == nil || errors.Is(err, redis.Nil) {
		return value, err
	}

	value, err = client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	return value, err
}
