package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/allisson/fieldvault/internal/errors"
	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
	sessionService "github.com/allisson/fieldvault/internal/session/service"
)

// RegistrationRateLimitPolicy is the cross-process issuance cap for
// registration grants: at most WindowLimit grants per origin address per
// Window, enforced through the shared counter.
type RegistrationRateLimitPolicy struct {
	WindowLimit int64
	Window      time.Duration
}

// sessionUseCase implements SessionUseCase.
type sessionUseCase struct {
	tokenService     sessionService.TokenService
	sessionRepo      SessionRepository
	dekCacheRepo     DekCacheRepository
	blacklistRepo    BlacklistRepository
	registrationRepo RegistrationTokenRepository
	counterRepo      CounterRepository
	identityProvider IdentityProvider
	limiter          *sessionService.RegistrationRateLimiter
	rateLimitPolicy  RegistrationRateLimitPolicy
	refreshGroup     singleflight.Group
}

// NewSessionUseCase creates a new SessionUseCase instance. identityProvider
// may be nil; a cache miss is then terminal instead of falling through to a
// refresh.
func NewSessionUseCase(
	tokenService sessionService.TokenService,
	sessionRepo SessionRepository,
	dekCacheRepo DekCacheRepository,
	blacklistRepo BlacklistRepository,
	registrationRepo RegistrationTokenRepository,
	counterRepo CounterRepository,
	identityProvider IdentityProvider,
	limiter *sessionService.RegistrationRateLimiter,
	rateLimitPolicy RegistrationRateLimitPolicy,
) SessionUseCase {
	return &sessionUseCase{
		tokenService:     tokenService,
		sessionRepo:      sessionRepo,
		dekCacheRepo:     dekCacheRepo,
		blacklistRepo:    blacklistRepo,
		registrationRepo: registrationRepo,
		counterRepo:      counterRepo,
		identityProvider: identityProvider,
		limiter:          limiter,
		rateLimitPolicy:  rateLimitPolicy,
	}
}

// Create issues a new bearer token and stores the session entry under the
// tier-dependent TTL.
func (s *sessionUseCase) Create(ctx context.Context, entry *sessionDomain.SessionEntry) (string, error) {
	if !entry.Tier.Valid() {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("unknown security tier %q", entry.Tier))
	}

	token, err := s.tokenService.GenerateToken()
	if err != nil {
		return "", err
	}

	if entry.IssuedAt.IsZero() {
		entry.IssuedAt = time.Now().UTC()
	}

	if err := s.sessionRepo.Save(ctx, token, entry, entry.TTL()); err != nil {
		return "", err
	}

	return token, nil
}

// Verify resolves a bearer token to its session entry.
//
// The blacklist is consulted first so an explicitly denied token stays denied
// even when the upstream provider would still refresh it. A cache hit bumps
// the TTL best-effort and returns. A miss falls through to the identity
// provider, collapsed per token through singleflight so a burst of requests
// carrying the same expired token triggers a single upstream refresh.
func (s *sessionUseCase) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	denied, err := s.blacklistRepo.Contains(ctx, token)
	if err != nil {
		return nil, err
	}
	if denied {
		return nil, sessionDomain.ErrSessionBlacklisted
	}

	entry, err := s.sessionRepo.Get(ctx, token)
	if err == nil {
		if touchErr := s.sessionRepo.Touch(ctx, token, entry.TTL()); touchErr != nil {
			slog.WarnContext(ctx, "session ttl refresh failed", "error", touchErr)
		}
		return &VerifyResult{Entry: entry, Token: token}, nil
	}
	if !errors.Is(err, sessionDomain.ErrSessionNotFound) {
		return nil, err
	}

	if s.identityProvider == nil {
		return nil, sessionDomain.ErrSessionNotFound
	}

	value, err, _ := s.refreshGroup.Do(token, func() (any, error) {
		return s.refresh(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return value.(*VerifyResult), nil
}

// refresh consults the identity provider for a token with no local entry and
// re-populates the cache. When the provider rotated the token the session and
// any cached DEK part are re-keyed under the new token before the old entry
// is dropped.
func (s *sessionUseCase) refresh(ctx context.Context, token string) (*VerifyResult, error) {
	entry, currentToken, err := s.identityProvider.Refresh(ctx, token)
	if err != nil {
		return nil, sessionDomain.ErrSessionNotFound
	}

	if err := s.sessionRepo.Save(ctx, currentToken, entry, entry.TTL()); err != nil {
		return nil, err
	}

	result := &VerifyResult{Entry: entry, Token: currentToken}
	if currentToken == token {
		return result, nil
	}

	s.carryDekPart(ctx, entry.SubjectID, token, currentToken)
	if err := s.sessionRepo.Delete(ctx, token); err != nil {
		slog.WarnContext(ctx, "stale session cleanup failed after rotation", "error", err)
	}
	result.RotatedToken = currentToken

	return result, nil
}

// carryDekPart moves a cached server-held DEK part from the old token key to
// the rotated one, so a balanced-tier subject is not forced back through
// password authentication by a routine rotation. The ciphertext moves as-is.
// Best-effort: on any failure the entry simply expires under the old key.
func (s *sessionUseCase) carryDekPart(ctx context.Context, subjectID uuid.UUID, oldToken, newToken string) {
	encryptedPart, err := s.dekCacheRepo.Get(ctx, subjectID, oldToken, sessionDomain.DekCacheTTL)
	if err != nil {
		if !errors.Is(err, sessionDomain.ErrDekCacheExpired) {
			slog.WarnContext(ctx, "dek cache read failed during rotation", "error", err)
		}
		return
	}

	if err := s.dekCacheRepo.Save(ctx, subjectID, newToken, encryptedPart, sessionDomain.DekCacheTTL); err != nil {
		slog.WarnContext(ctx, "dek cache re-key failed during rotation", "error", err)
		return
	}
	if err := s.dekCacheRepo.Delete(ctx, subjectID, oldToken); err != nil {
		slog.WarnContext(ctx, "dek cache cleanup failed during rotation", "error", err)
	}
}

// Logout deletes the session and its cached DEK part and blacklists the
// token. The blacklist entry outlives the longest possible upstream validity
// so a provider-side token that survives local logout stays denied.
func (s *sessionUseCase) Logout(ctx context.Context, token string) error {
	entry, err := s.sessionRepo.Get(ctx, token)
	if err != nil && !errors.Is(err, sessionDomain.ErrSessionNotFound) {
		return err
	}

	if entry != nil {
		if err := s.dekCacheRepo.Delete(ctx, entry.SubjectID, token); err != nil {
			return err
		}
	}
	if err := s.sessionRepo.Delete(ctx, token); err != nil {
		return err
	}

	blacklistTTL := sessionDomain.PersistentSessionTTL
	if entry != nil {
		blacklistTTL = entry.TTL()
	}
	return s.blacklistRepo.Add(ctx, token, blacklistTTL)
}

// InvalidateAllForSubject deletes every session entry and every cached DEK
// part for the subject, including the session that initiated the call.
// Deletion continues past individual failures so one unreachable key does not
// leave the rest of the sessions alive.
func (s *sessionUseCase) InvalidateAllForSubject(ctx context.Context, subjectID uuid.UUID) error {
	tokens, err := s.sessionRepo.TokensForSubject(ctx, subjectID)
	if err != nil {
		return err
	}

	var lastErr error
	for _, token := range tokens {
		if err := s.dekCacheRepo.Delete(ctx, subjectID, token); err != nil {
			lastErr = err
		}
		if err := s.sessionRepo.Delete(ctx, token); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// IssueRegistrationToken creates a single-use registration grant for the
// origin address. Two throttles apply: a per-process token bucket smooths
// bursts, and a shared counter caps issuance per address per window across
// all processes. A grant-store failure fails the request; silently losing
// the grant would strand the registrant.
func (s *sessionUseCase) IssueRegistrationToken(ctx context.Context, originIP string) (string, error) {
	if s.limiter != nil && !s.limiter.Allow(originIP) {
		return "", sessionDomain.ErrRateLimited
	}

	if s.rateLimitPolicy.WindowLimit > 0 {
		count, err := s.counterRepo.Increment(ctx, "reg_rate:"+originIP, s.rateLimitPolicy.Window)
		if err != nil {
			return "", err
		}
		if count > s.rateLimitPolicy.WindowLimit {
			return "", sessionDomain.ErrRateLimited
		}
	}

	token, err := s.tokenService.GenerateToken()
	if err != nil {
		return "", err
	}

	grant := &sessionDomain.RegistrationGrant{
		IssuedAt: time.Now().UTC(),
		OriginIP: originIP,
	}
	if err := s.registrationRepo.Save(ctx, token, grant, sessionDomain.RegistrationTokenTTL); err != nil {
		return "", err
	}

	return token, nil
}

// ConsumeRegistrationToken atomically redeems a registration grant.
func (s *sessionUseCase) ConsumeRegistrationToken(
	ctx context.Context,
	token string,
) (*sessionDomain.RegistrationGrant, error) {
	return s.registrationRepo.Consume(ctx, token)
}
