package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
)

func marshalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache value: %w", err)
	}
	return string(raw), nil
}

func unmarshalJSON(raw string, out any) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode cache value: %w", err)
	}
	return nil
}

// Thin views exposing MemoryCacheStore under the individual repository
// interfaces, mirroring how the Redis repositories share one client.

// MemoryDekCacheRepository adapts MemoryCacheStore to usecase.DekCacheRepository.
type MemoryDekCacheRepository struct {
	Store *MemoryCacheStore
}

func (m *MemoryDekCacheRepository) Save(
	ctx context.Context,
	subjectID uuid.UUID,
	token, encryptedPart string,
	ttl time.Duration,
) error {
	return m.Store.SaveDekPart(ctx, subjectID, token, encryptedPart, ttl)
}

func (m *MemoryDekCacheRepository) Get(
	ctx context.Context,
	subjectID uuid.UUID,
	token string,
	ttl time.Duration,
) (string, error) {
	return m.Store.GetDekPart(ctx, subjectID, token, ttl)
}

func (m *MemoryDekCacheRepository) Delete(ctx context.Context, subjectID uuid.UUID, token string) error {
	return m.Store.DeleteDekPart(ctx, subjectID, token)
}

// MemoryBlacklistRepository adapts MemoryCacheStore to usecase.BlacklistRepository.
type MemoryBlacklistRepository struct {
	Store *MemoryCacheStore
}

func (m *MemoryBlacklistRepository) Add(ctx context.Context, token string, ttl time.Duration) error {
	return m.Store.AddDenied(ctx, token, ttl)
}

func (m *MemoryBlacklistRepository) Contains(ctx context.Context, token string) (bool, error) {
	return m.Store.ContainsDenied(ctx, token)
}

// MemoryCounterRepository adapts MemoryCacheStore to usecase.CounterRepository.
type MemoryCounterRepository struct {
	Store *MemoryCacheStore
}

func (m *MemoryCounterRepository) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return m.Store.Increment(ctx, key, ttl)
}

func (m *MemoryCounterRepository) Get(ctx context.Context, key string) (int64, error) {
	return m.Store.CounterValue(ctx, key)
}

func (m *MemoryCounterRepository) Reset(ctx context.Context, key string) error {
	return m.Store.Reset(ctx, key)
}

// MemoryRegistrationTokenRepository adapts MemoryCacheStore to
// usecase.RegistrationTokenRepository.
type MemoryRegistrationTokenRepository struct {
	Store *MemoryCacheStore
}

func (m *MemoryRegistrationTokenRepository) Save(
	ctx context.Context,
	token string,
	grant *sessionDomain.RegistrationGrant,
	ttl time.Duration,
) error {
	return m.Store.SaveGrant(ctx, token, grant, ttl)
}

func (m *MemoryRegistrationTokenRepository) Consume(
	ctx context.Context,
	token string,
) (*sessionDomain.RegistrationGrant, error) {
	return m.Store.ConsumeGrant(ctx, token)
}
