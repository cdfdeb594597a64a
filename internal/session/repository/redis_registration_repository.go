package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/allisson/fieldvault/internal/errors"
	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
)

// RedisRegistrationTokenRepository implements usecase.RegistrationTokenRepository
// on Redis. Consumption uses GETDEL so exactly one registration can redeem a
// grant even under concurrent attempts.
type RedisRegistrationTokenRepository struct {
	client redis.UniversalClient
}

// NewRedisRegistrationTokenRepository creates a new RedisRegistrationTokenRepository.
func NewRedisRegistrationTokenRepository(client redis.UniversalClient) *RedisRegistrationTokenRepository {
	return &RedisRegistrationTokenRepository{client: client}
}

// Save stores a grant with the given TTL. A store failure here is fatal to the
// issuing request; silently losing the grant would strand the registrant.
func (r *RedisRegistrationTokenRepository) Save(
	ctx context.Context,
	token string,
	grant *sessionDomain.RegistrationGrant,
	ttl time.Duration,
) error {
	raw, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to encode registration grant: %w", err)
	}

	if err := r.client.Set(ctx, regTokenKeyPrefix+token, raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}

	return nil
}

// Consume atomically retrieves and deletes a grant. A transport failure is
// fatal to the request rather than retried: retrying a consume could hand the
// same grant to two registrations.
func (r *RedisRegistrationTokenRepository) Consume(
	ctx context.Context,
	token string,
) (*sessionDomain.RegistrationGrant, error) {
	raw, err := r.client.GetDel(ctx, regTokenKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessionDomain.ErrRegistrationTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}

	var grant sessionDomain.RegistrationGrant
	if err := json.Unmarshal([]byte(raw), &grant); err != nil {
		return nil, fmt.Errorf("failed to decode registration grant: %w", err)
	}

	return &grant, nil
}
