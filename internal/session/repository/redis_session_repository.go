package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/allisson/fieldvault/internal/errors"
	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
)

// RedisSessionRepository implements usecase.SessionRepository on Redis.
//
// Alongside each `session:<token>` entry it maintains a
// `subject_sessions:<subject>` set so InvalidateAllForSubject can find every
// live token without scanning the keyspace. The index carries the longest
// possible session TTL; stale members are tolerated because the session keys
// themselves are authoritative.
type RedisSessionRepository struct {
	client redis.UniversalClient
}

// NewRedisSessionRepository creates a new RedisSessionRepository.
func NewRedisSessionRepository(client redis.UniversalClient) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

// Get returns the session entry for a token or ErrSessionNotFound.
func (r *RedisSessionRepository) Get(ctx context.Context, token string) (*sessionDomain.SessionEntry, error) {
	raw, err := getWithRetry(ctx, r.client, sessionKeyPrefix+token)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessionDomain.ErrSessionNotFound
		}
		return nil, err
	}

	var entry sessionDomain.SessionEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode session entry: %w", err)
	}

	return &entry, nil
}

// Save stores the entry under the token and records the token in the
// subject index in a single pipeline.
func (r *RedisSessionRepository) Save(
	ctx context.Context,
	token string,
	entry *sessionDomain.SessionEntry,
	ttl time.Duration,
) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode session entry: %w", err)
	}

	indexKey := subjectIndexKeyPrefix + entry.SubjectID.String()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+token, raw, ttl)
	pipe.SAdd(ctx, indexKey, token)
	pipe.Expire(ctx, indexKey, sessionDomain.PersistentSessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}

	return nil
}

// Delete removes the entry and its subject-index membership.
func (r *RedisSessionRepository) Delete(ctx context.Context, token string) error {
	entry, err := r.Get(ctx, token)
	if err != nil {
		if errors.Is(err, sessionDomain.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+token)
	pipe.SRem(ctx, subjectIndexKeyPrefix+entry.SubjectID.String(), token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}

	return nil
}

// Touch extends the entry's TTL. Best-effort: errors are swallowed so a slow
// or unreachable store never fails the verifying request.
func (r *RedisSessionRepository) Touch(ctx context.Context, token string, ttl time.Duration) error {
	_ = r.client.Expire(ctx, sessionKeyPrefix+token, ttl).Err()
	return nil
}

// TokensForSubject lists all live tokens recorded for a subject.
func (r *RedisSessionRepository) TokensForSubject(ctx context.Context, subjectID uuid.UUID) ([]string, error) {
	tokens, err := r.client.SMembers(ctx, subjectIndexKeyPrefix+subjectID.String()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	return tokens, nil
}
