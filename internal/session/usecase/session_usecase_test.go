package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
	"github.com/allisson/fieldvault/internal/session/repository"
	sessionService "github.com/allisson/fieldvault/internal/session/service"
)

// fakeIdentityProvider returns canned refresh results.
type fakeIdentityProvider struct {
	entry    *sessionDomain.SessionEntry
	token    string
	err      error
	requests int
}

func (f *fakeIdentityProvider) Refresh(_ context.Context, _ string) (*sessionDomain.SessionEntry, string, error) {
	f.requests++
	if f.err != nil {
		return nil, "", f.err
	}
	return f.entry, f.token, nil
}

type sessionFixture struct {
	store    *repository.MemoryCacheStore
	dekRepo  DekCacheRepository
	provider *fakeIdentityProvider
	useCase  SessionUseCase
	limiter  *sessionService.RegistrationRateLimiter
}

func newSessionFixture(t *testing.T, provider *fakeIdentityProvider) *sessionFixture {
	t.Helper()

	store := repository.NewMemoryCacheStore()
	dekRepo := &repository.MemoryDekCacheRepository{Store: store}
	limiter := sessionService.NewRegistrationRateLimiter(100, 100)
	t.Cleanup(limiter.Close)

	var identityProvider IdentityProvider
	if provider != nil {
		identityProvider = provider
	}

	useCase := NewSessionUseCase(
		sessionService.NewTokenService(),
		store,
		dekRepo,
		&repository.MemoryBlacklistRepository{Store: store},
		&repository.MemoryRegistrationTokenRepository{Store: store},
		&repository.MemoryCounterRepository{Store: store},
		identityProvider,
		limiter,
		RegistrationRateLimitPolicy{WindowLimit: 3, Window: time.Minute},
	)

	return &sessionFixture{
		store:    store,
		dekRepo:  dekRepo,
		provider: provider,
		useCase:  useCase,
		limiter:  limiter,
	}
}

func testEntry(role sessionDomain.Role, tier sessionDomain.Tier, persistent bool) *sessionDomain.SessionEntry {
	return &sessionDomain.SessionEntry{
		SubjectID:   uuid.Must(uuid.NewV7()),
		DisplayName: "Test Subject",
		Role:        role,
		TenantID:    uuid.Must(uuid.NewV7()),
		Tier:        tier,
		Persistent:  persistent,
	}
}

func TestSessionUseCaseCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a token and stores the entry", func(t *testing.T) {
		fixture := newSessionFixture(t, nil)
		entry := testEntry(sessionDomain.RoleUser, sessionDomain.TierHigh, false)

		token, err := fixture.useCase.Create(ctx, entry)
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.False(t, entry.IssuedAt.IsZero())

		result, err := fixture.useCase.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, entry.SubjectID, result.Entry.SubjectID)
		assert.Equal(t, token, result.Token)
		assert.Empty(t, result.RotatedToken)
	})

	t.Run("issues distinct tokens per session", func(t *testing.T) {
		fixture := newSessionFixture(t, nil)
		entry := testEntry(sessionDomain.RoleUser, sessionDomain.TierHigh, false)

		first, err := fixture.useCase.Create(ctx, entry)
		require.NoError(t, err)
		second, err := fixture.useCase.Create(ctx, entry)
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("rejects unknown tier", func(t *testing.T) {
		fixture := newSessionFixture(t, nil)
		entry := testEntry(sessionDomain.RoleUser, sessionDomain.Tier("paranoid"), false)

		_, err := fixture.useCase.Create(ctx, entry)
		assert.Error(t, err)
	})
}

func TestSessionTTLPolicy(t *testing.T) {
	tests := []struct {
		name       string
		role       sessionDomain.Role
		tier       sessionDomain.Tier
		persistent bool
		want       time.Duration
	}{
		{"default user session", sessionDomain.RoleUser, sessionDomain.TierHigh, false, sessionDomain.SessionTTL},
		{"persistent high tier", sessionDomain.RoleUser, sessionDomain.TierHigh, true, sessionDomain.PersistentSessionTTL},
		{"persistent convenience tier", sessionDomain.RoleUser, sessionDomain.TierConvenience, true, sessionDomain.PersistentSessionTTL},
		{"persistent balanced tier stays default", sessionDomain.RoleUser, sessionDomain.TierBalanced, true, sessionDomain.SessionTTL},
		{"admin session capped", sessionDomain.RoleAdmin, sessionDomain.TierHigh, false, sessionDomain.AdminSessionTTL},
		{"admin cap beats persistent", sessionDomain.RoleAdmin, sessionDomain.TierConvenience, true, sessionDomain.AdminSessionTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := testEntry(tt.role, tt.tier, tt.persistent)
			assert.Equal(t, tt.want, entry.TTL())
		})
	}
}

func TestSessionUseCaseVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("expired session without provider is not found", func(t *testing.T) {
		fixture := newSessionFixture(t, nil)
		entry := testEntry(sessionDomain.RoleUser, sessionDomain.TierHigh, false)

		token, err := fixture.useCase.Create(ctx, entry)
		require.NoError(t, err)

		fixture.store.SetClock(func() time.Time {
			return time.Now().Add(sessionDomain.SessionTTL + time.Minute)
		})

		_, err = fixture.useCase.Verify(ctx, token)
		assert.ErrorIs(t, err, sessionDomain.ErrSessionNotFound)
	})

	t.Run("blacklisted token denied before provider is consulted", func(t *testing.T) {
		provider := &fakeIdentityProvider{
			entry: testEntry(sessionDomain.RoleUser, sessionDomain.TierHigh, false),
			token: "rotated-token",
		}
		fixture := newSessionFixture(t, provider)
		entry := testEntry(sessionDomain.RoleUser, sessionDomain.TierHigh, false)

		token, err := fixture.useCase.Create(ctx, entry)
		require.NoError(t, err)
		require.NoError(t, fixture.useCase.Logout(ctx, token))

		_, err = fixture.useCase.Verify(ctx, token)
		assert.ErrorIs(t, err, sessionDomain.ErrSessionBlacklisted)
		assert.Zero(t, provider.requests)
	})

	t.Run("miss falls through to provider and repopulates the cache", func(t *testing.T) {
		refreshed := testEntry(sessionDomain.RoleUser, sessionDomain.TierHigh, false)
		provider := &fakeIdentityProvider{entry: refreshed, token: "stale-token"}
		fixture := newSessionFixture(t, provider)

		result, err := fixture.useCase.Verify(ctx, "stale-token")
		require.NoError(t, err)
		assert.Equal(t, refreshed.SubjectID, result.Entry.SubjectID)
		assert.Empty(t, result.RotatedToken)
		assert.Equal(t, 1, provider.requests)

		// Second lookup is a cache hit; the provider is not consulted again.
		_, err = fixture.useCase.Verify(ctx, "stale-token")
		require.NoError(t, err)
		assert.Equal(t, 1, provider.requests)
	})

	t.Run("provider refusal surfaces as not found", func(t *testing.T) {
		provider := &fakeIdentityProvider{err: errors.New("upstream says no")}
		fixture := newSessionFixture(t, provider)

		_, err := fixture.useCase.Verify(ctx, "unknown-token")
		assert.ErrorIs(t, err, sessionDomain.ErrSessionNotFound)
	})

	t.Run("rotation re-keys the session and carries the dek cache entry", func(t *testing.T) {
		refreshed := testEntry(sessionDomain.RoleUser, sessionDomain.TierBalanced, false)
		provider := &fakeIdentityProvider{entry: refreshed, token: "new-token"}
		fixture := newSessionFixture(t, provider)

		err := fixture.dekRepo.Save(
			ctx,
			refreshed.SubjectID,
			"old-token",
			"key1:opaque-ciphertext",
			sessionDomain.DekCacheTTL,
		)
		require.NoError(t, err)

		result, err := fixture.useCase.Verify(ctx, "old-token")
		require.NoError(t, err)
		assert.Equal(t, "new-token", result.Token)
		assert.Equal(t, "new-token", result.RotatedToken)

		carried, err := fixture.dekRepo.Get(ctx, refreshed.SubjectID, "new-token", sessionDomain.DekCacheTTL)
		require.NoError(t, err)
		assert.Equal(t, "key1:opaque-ciphertext", carried)

		_, err = fixture.dekRepo.Get(ctx, refreshed.SubjectID, "old-token", sessionDomain.DekCacheTTL)
		assert.ErrorIs(t, err, sessionDomain.ErrDekCacheExpired)

		// The old token no longer resolves locally.
		provider.err = errors.New("gone")
		_, err = fixture.useCase.Verify(ctx, "old-token")
		assert.ErrorIs(t, err, sessionDomain.ErrSessionNotFound)
	})
}

func TestSessionUseCaseLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("removes session and dek entry and blacklists the token", func(t *testing.T) {
		fixture := newSessionFixture(t, nil)
		entry := testEntry(sessionDomain.RoleUser, sessionDomain.TierBalanced, false)

		token, err := fixture.useCase.Create(ctx, entry)
		require.NoError(t, err)
		require.NoError(t, fixture.dekRepo.Save(ctx, entry.SubjectID, token, "part", sessionDomain.DekCacheTTL))

		require.NoError(t, fixture.useCase.Logout(ctx, token))

		_, err = fixture.useCase.Verify(ctx, token)
		assert.ErrorIs(t, err, sessionDomain.ErrSessionBlacklisted)

		_, err = fixture.dekRepo.Get(ctx, entry.SubjectID, token, sessionDomain.DekCacheTTL)
		assert.ErrorIs(t, err, sessionDomain.ErrDekCacheExpired)
	})

	t.Run("logout of an unknown token still blacklists it", func(t *testing.T) {
		fixture := newSessionFixture(t, nil)

		require.NoError(t, fixture.useCase.Logout(ctx, "never-issued"))

		_, err := fixture.useCase.Verify(ctx, "never-issued")
		assert.ErrorIs(t, err, sessionDomain.ErrSessionBlacklisted)

		// An unknown token could still be a valid persistent token upstream,
		// so the blacklist entry must outlast the short-session window.
		fixture.store.SetClock(func() time.Time {
			return time.Now().Add(sessionDomain.SessionTTL + time.Hour)
		})

		_, err = fixture.useCase.Verify(ctx, "never-issued")
		assert.ErrorIs(t, err, sessionDomain.ErrSessionBlacklisted)
	})
}

func TestSessionUseCaseInvalidateAllForSubject(t *testing.T) {
	ctx := context.Background()

	t.Run("removes every session and dek entry including the initiator", func(t *testing.T) {
		fixture := newSessionFixture(t, nil)
		entry := testEntry(sessionDomain.RoleUser, sessionDomain.TierBalanced, false)

		var tokens []string
		for range 3 {
			token, err := fixture.useCase.Create(ctx, entry)
			require.NoError(t, err)
			require.NoError(t, fixture.dekRepo.Save(ctx, entry.SubjectID, token, "part", sessionDomain.DekCacheTTL))
			tokens = append(tokens, token)
		}

		require.NoError(t, fixture.useCase.InvalidateAllForSubject(ctx, entry.SubjectID))

		for _, token := range tokens {
			_, err := fixture.useCase.Verify(ctx, token)
			assert.ErrorIs(t, err, sessionDomain.ErrSessionNotFound)

			_, err = fixture.dekRepo.Get(ctx, entry.SubjectID, token, sessionDomain.DekCacheTTL)
			assert.ErrorIs(t, err, sessionDomain.ErrDekCacheExpired)
		}
	})

	t.Run("leaves other subjects untouched", func(t *testing.T) {
		fixture := newSessionFixture(t, nil)
		victim := testEntry(sessionDomain.RoleUser, sessionDomain.TierHigh, false)
		bystander := testEntry(sessionDomain.RoleUser, sessionDomain.TierHigh, false)

		_, err := fixture.useCase.Create(ctx, victim)
		require.NoError(t, err)
		bystanderToken, err := fixture.useCase.Create(ctx, bystander)
		require.NoError(t, err)

		require.NoError(t, fixture.useCase.InvalidateAllForSubject(ctx, victim.SubjectID))

		_, err = fixture.useCase.Verify(ctx, bystanderToken)
		assert.NoError(t, err)
	})
}

func TestSessionUseCaseRegistrationTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("issued grant is consumed exactly once", func(t *testing.T) {
		fixture := newSessionFixture(t, nil)

		token, err := fixture.useCase.IssueRegistrationToken(ctx, "203.0.113.7")
		require.NoError(t, err)

		grant, err := fixture.useCase.ConsumeRegistrationToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.7", grant.OriginIP)
		assert.False(t, grant.IssuedAt.IsZero())

		_, err = fixture.useCase.ConsumeRegistrationToken(ctx, token)
		assert.ErrorIs(t, err, sessionDomain.ErrRegistrationTokenInvalid)
	})

	t.Run("expired grant cannot be consumed", func(t *testing.T) {
		fixture := newSessionFixture(t, nil)

		token, err := fixture.useCase.IssueRegistrationToken(ctx, "203.0.113.7")
		require.NoError(t, err)

		fixture.store.SetClock(func() time.Time {
			return time.Now().Add(sessionDomain.RegistrationTokenTTL + time.Minute)
		})

		_, err = fixture.useCase.ConsumeRegistrationToken(ctx, token)
		assert.ErrorIs(t, err, sessionDomain.ErrRegistrationTokenInvalid)
	})

	t.Run("window counter limits issuance per origin address", func(t *testing.T) {
		fixture := newSessionFixture(t, nil)

		for range 3 {
			_, err := fixture.useCase.IssueRegistrationToken(ctx, "198.51.100.9")
			require.NoError(t, err)
		}

		_, err := fixture.useCase.IssueRegistrationToken(ctx, "198.51.100.9")
		assert.ErrorIs(t, err, sessionDomain.ErrRateLimited)

		// A different origin address is unaffected.
		_, err = fixture.useCase.IssueRegistrationToken(ctx, "198.51.100.10")
		assert.NoError(t, err)
	})

	t.Run("token bucket throttles bursts per origin address", func(t *testing.T) {
		store := repository.NewMemoryCacheStore()
		limiter := sessionService.NewRegistrationRateLimiter(1, 1)
		t.Cleanup(limiter.Close)

		useCase := NewSessionUseCase(
			sessionService.NewTokenService(),
			store,
			&repository.MemoryDekCacheRepository{Store: store},
			&repository.MemoryBlacklistRepository{Store: store},
			&repository.MemoryRegistrationTokenRepository{Store: store},
			&repository.MemoryCounterRepository{Store: store},
			nil,
			limiter,
			RegistrationRateLimitPolicy{},
		)

		_, err := useCase.IssueRegistrationToken(ctx, "192.0.2.1")
		require.NoError(t, err)

		_, err = useCase.IssueRegistrationToken(ctx, "192.0.2.1")
		assert.ErrorIs(t, err, sessionDomain.ErrRateLimited)
	})
}
