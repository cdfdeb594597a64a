package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/allisson/fieldvault/internal/errors"
)

// RedisLockRepository implements usecase.LockRepository with SET-if-absent.
type RedisLockRepository struct {
	client redis.UniversalClient
}

// NewRedisLockRepository creates a new RedisLockRepository.
func NewRedisLockRepository(client redis.UniversalClient) *RedisLockRepository {
	return &RedisLockRepository{client: client}
}

// Acquire attempts to take the lock. A transport failure is surfaced rather
// than treated as "not held": proceeding without the lock would reintroduce
// the race the lock exists to prevent.
func (r *RedisLockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKeyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	return ok, nil
}

// Release drops the lock.
func (r *RedisLockRepository) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, lockKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	return nil
}

// RedisCounterRepository implements usecase.CounterRepository with INCR and a
// TTL applied on first increment. Keys are used as-is; callers own the
// namespace (lockout:<subject>, reg_rate:<ip>).
type RedisCounterRepository struct {
	client redis.UniversalClient
}

// NewRedisCounterRepository creates a new RedisCounterRepository.
func NewRedisCounterRepository(client redis.UniversalClient) *RedisCounterRepository {
	return &RedisCounterRepository{client: client}
}

// Increment adds one and returns the new value. The TTL is attached only when
// the key has none, so the window is anchored to the first event.
func (r *RedisCounterRepository) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	return incr.Val(), nil
}

// Get returns the current value, or zero for a missing counter.
func (r *RedisCounterRepository) Get(ctx context.Context, key string) (int64, error) {
	value, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	return value, nil
}

// Reset deletes the counter.
func (r *RedisCounterRepository) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	return nil
}
