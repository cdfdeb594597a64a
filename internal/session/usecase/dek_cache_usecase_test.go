package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/fieldvault/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldvault/internal/crypto/service"
	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
	"github.com/allisson/fieldvault/internal/session/repository"
)

type dekCacheFixture struct {
	store    *repository.MemoryCacheStore
	dekRepo  DekCacheRepository
	split    cryptoService.SplitCustody
	keyChain *cryptoDomain.CacheKeyChain
	useCase  DekCacheUseCase
}

func newDekCacheFixture(t *testing.T) *dekCacheFixture {
	t.Helper()

	keyChain, err := cryptoDomain.NewEphemeralCacheKeyChain(cryptoDomain.AESGCM)
	require.NoError(t, err)
	t.Cleanup(keyChain.Close)

	store := repository.NewMemoryCacheStore()
	dekRepo := &repository.MemoryDekCacheRepository{Store: store}
	split := cryptoService.NewSplitCustody()

	return &dekCacheFixture{
		store:    store,
		dekRepo:  dekRepo,
		split:    split,
		keyChain: keyChain,
		useCase:  NewDekCacheUseCase(cryptoService.NewAEADManager(), split, keyChain, dekRepo),
	}
}

func randomDek(t *testing.T) []byte {
	t.Helper()

	dek := make([]byte, cryptoDomain.DekSize)
	_, err := rand.Read(dek)
	require.NoError(t, err)
	return dek
}

func TestDekCacheUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("cached server part reconstructs the original dek", func(t *testing.T) {
		fixture := newDekCacheFixture(t)
		subjectID := uuid.Must(uuid.NewV7())
		dek := randomDek(t)

		splitDek, err := fixture.split.Split(dek)
		require.NoError(t, err)

		require.NoError(t, fixture.useCase.CacheServerPart(ctx, subjectID, "token-1", splitDek.ServerPart))

		recovered, err := fixture.useCase.ReconstructFromCache(ctx, subjectID, "token-1", splitDek.ClientPart)
		require.NoError(t, err)
		assert.Equal(t, dek, recovered)
	})

	t.Run("stored entry is encrypted and names the cache key", func(t *testing.T) {
		fixture := newDekCacheFixture(t)
		subjectID := uuid.Must(uuid.NewV7())

		splitDek, err := fixture.split.Split(randomDek(t))
		require.NoError(t, err)

		require.NoError(t, fixture.useCase.CacheServerPart(ctx, subjectID, "token-1", splitDek.ServerPart))

		stored, err := fixture.dekRepo.Get(ctx, subjectID, "token-1", sessionDomain.DekCacheTTL)
		require.NoError(t, err)

		activeKey, ok := fixture.keyChain.ActiveCacheKey()
		require.True(t, ok)
		assert.Contains(t, stored, activeKey.ID+":")
		assert.NotContains(t, stored, splitDek.ServerPart)
	})

	t.Run("expired entry returns dek cache expired", func(t *testing.T) {
		fixture := newDekCacheFixture(t)
		subjectID := uuid.Must(uuid.NewV7())

		splitDek, err := fixture.split.Split(randomDek(t))
		require.NoError(t, err)

		require.NoError(t, fixture.useCase.CacheServerPart(ctx, subjectID, "token-1", splitDek.ServerPart))

		fixture.store.SetClock(func() time.Time {
			return time.Now().Add(sessionDomain.DekCacheTTL + time.Minute)
		})

		_, err = fixture.useCase.ReconstructFromCache(ctx, subjectID, "token-1", splitDek.ClientPart)
		assert.ErrorIs(t, err, sessionDomain.ErrDekCacheExpired)
	})

	t.Run("entry bound to one subject does not decrypt for another", func(t *testing.T) {
		fixture := newDekCacheFixture(t)
		owner := uuid.Must(uuid.NewV7())
		intruder := uuid.Must(uuid.NewV7())

		splitDek, err := fixture.split.Split(randomDek(t))
		require.NoError(t, err)

		require.NoError(t, fixture.useCase.CacheServerPart(ctx, owner, "token-1", splitDek.ServerPart))

		stored, err := fixture.dekRepo.Get(ctx, owner, "token-1", sessionDomain.DekCacheTTL)
		require.NoError(t, err)
		require.NoError(t, fixture.dekRepo.Save(ctx, intruder, "token-1", stored, sessionDomain.DekCacheTTL))

		_, err = fixture.useCase.ReconstructFromCache(ctx, intruder, "token-1", splitDek.ClientPart)
		assert.Error(t, err)
	})

	t.Run("tampered entry fails to decrypt", func(t *testing.T) {
		fixture := newDekCacheFixture(t)
		subjectID := uuid.Must(uuid.NewV7())

		splitDek, err := fixture.split.Split(randomDek(t))
		require.NoError(t, err)

		require.NoError(t, fixture.useCase.CacheServerPart(ctx, subjectID, "token-1", splitDek.ServerPart))

		require.NoError(t, fixture.dekRepo.Save(
			ctx,
			subjectID,
			"token-1",
			"unknown-key:"+base64.StdEncoding.EncodeToString(make([]byte, 40)),
			sessionDomain.DekCacheTTL,
		))

		_, err = fixture.useCase.ReconstructFromCache(ctx, subjectID, "token-1", splitDek.ClientPart)
		assert.Error(t, err)
	})

	t.Run("rejects server part that is not base64", func(t *testing.T) {
		fixture := newDekCacheFixture(t)

		err := fixture.useCase.CacheServerPart(ctx, uuid.Must(uuid.NewV7()), "token-1", "not base64!")
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidSplitPart)
	})
}
