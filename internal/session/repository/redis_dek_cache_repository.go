package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/allisson/fieldvault/internal/errors"
	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
)

// RedisDekCacheRepository implements usecase.DekCacheRepository on Redis.
// Values are already encrypted under the server-local cache key before they
// reach this layer; Redis only ever sees ciphertext.
type RedisDekCacheRepository struct {
	client redis.UniversalClient
}

// NewRedisDekCacheRepository creates a new RedisDekCacheRepository.
func NewRedisDekCacheRepository(client redis.UniversalClient) *RedisDekCacheRepository {
	return &RedisDekCacheRepository{client: client}
}

func dekKey(subjectID uuid.UUID, token string) string {
	return dekKeyPrefix + subjectID.String() + ":" + token
}

// Save stores the encrypted server part with the given TTL.
func (r *RedisDekCacheRepository) Save(
	ctx context.Context,
	subjectID uuid.UUID,
	token, encryptedPart string,
	ttl time.Duration,
) error {
	if err := r.client.Set(ctx, dekKey(subjectID, token), encryptedPart, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	return nil
}

// Get returns the encrypted server part, refreshing the TTL on the hit. The
// refresh is best-effort; a failed Expire never fails the read.
func (r *RedisDekCacheRepository) Get(
	ctx context.Context,
	subjectID uuid.UUID,
	token string,
	ttl time.Duration,
) (string, error) {
	key := dekKey(subjectID, token)

	value, err := getWithRetry(ctx, r.client, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", sessionDomain.ErrDekCacheExpired
		}
		return "", err
	}

	_ = r.client.Expire(ctx, key, ttl).Err()

	return value, nil
}

// Delete removes a single entry.
func (r *RedisDekCacheRepository) Delete(ctx context.Context, subjectID uuid.UUID, token string) error {
	if err := r.client.Del(ctx, dekKey(subjectID, token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	return nil
}
