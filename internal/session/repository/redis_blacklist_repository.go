package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/allisson/fieldvault/internal/errors"
)

// RedisBlacklistRepository implements usecase.BlacklistRepository on Redis
// with presence-only markers.
type RedisBlacklistRepository struct {
	client redis.UniversalClient
}

// NewRedisBlacklistRepository creates a new RedisBlacklistRepository.
func NewRedisBlacklistRepository(client redis.UniversalClient) *RedisBlacklistRepository {
	return &RedisBlacklistRepository{client: client}
}

// Add marks a token as denied until ttl elapses. The TTL matches the longest
// remaining upstream validity, after which the marker is useless anyway.
func (r *RedisBlacklistRepository) Add(ctx context.Context, token string, ttl time.Duration) error {
	if err := r.client.Set(ctx, blacklistKeyPrefix+token, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	return nil
}

// Contains reports whether the token is denied.
func (r *RedisBlacklistRepository) Contains(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, blacklistKeyPrefix+token).Result()
	if err != nil {
		// Retry once per the read policy.
		n, err = r.client.Exists(ctx, blacklistKeyPrefix+token).Result()
		if err != nil {
			return false, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
		}
	}
	return n > 0, nil
}
