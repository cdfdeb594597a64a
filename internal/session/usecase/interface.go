// Package usecase implements the session cache and split-DEK cache business
// logic on top of the shared cache store.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
)

// SessionRepository persists session entries in the shared cache store under
// the `session:<token>` namespace, plus a per-subject token index used for
// broadcast invalidation. Implementations must use the store's native atomic
// primitives; every read-then-write sequence crosses a network boundary.
type SessionRepository interface {
	// Get returns the session entry for a token or ErrSessionNotFound.
	Get(ctx context.Context, token string) (*sessionDomain.SessionEntry, error)

	// Save stores the entry under the token with the given TTL and records the
	// token in the subject index.
	Save(ctx context.Context, token string, entry *sessionDomain.SessionEntry, ttl time.Duration) error

	// Delete removes the entry and its subject-index membership.
	Delete(ctx context.Context, token string) error

	// Touch extends the entry's TTL. Best-effort: failures must not fail the
	// calling request.
	Touch(ctx context.Context, token string, ttl time.Duration) error

	// TokensForSubject lists all live tokens recorded for a subject.
	TokensForSubject(ctx context.Context, subjectID uuid.UUID) ([]string, error)
}

// DekCacheRepository persists encrypted server-held split-DEK parts under the
// `dek:<subject_id>:<token>` namespace with a 30-minute TTL.
type DekCacheRepository interface {
	// Save stores the encrypted server part.
	Save(ctx context.Context, subjectID uuid.UUID, token, encryptedPart string, ttl time.Duration) error

	// Get returns the encrypted server part and refreshes its TTL, or
	// ErrDekCacheExpired when no entry exists.
	Get(ctx context.Context, subjectID uuid.UUID, token string, ttl time.Duration) (string, error)

	// Delete removes a single entry.
	Delete(ctx context.Context, subjectID uuid.UUID, token string) error
}

// BlacklistRepository records explicitly denied tokens under the
// `blacklist:<token>` namespace.
type BlacklistRepository interface {
	// Add marks a token as denied until ttl elapses.
	Add(ctx context.Context, token string, ttl time.Duration) error

	// Contains reports whether the token is denied.
	Contains(ctx context.Context, token string) (bool, error)
}

// RegistrationTokenRepository persists single-use registration grants under
// the `reg_token:<token>` namespace.
type RegistrationTokenRepository interface {
	// Save stores a grant with the given TTL.
	Save(ctx context.Context, token string, grant *sessionDomain.RegistrationGrant, ttl time.Duration) error

	// Consume atomically retrieves and deletes a grant, so exactly one
	// registration can use it. Returns ErrRegistrationTokenInvalid when the
	// grant is missing or already consumed.
	Consume(ctx context.Context, token string) (*sessionDomain.RegistrationGrant, error)
}

// LockRepository provides short-lived distributed locks (SET-if-absent with
// TTL). Used to serialize password changes per subject.
type LockRepository interface {
	// Acquire attempts to take the lock; returns false when already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops the lock.
	Release(ctx context.Context, key string) error
}

// CounterRepository provides atomic counters with TTL (INCR + expire). Used
// for login-lockout tracking and the rate-limit keys an external limiter
// cooperates with.
type CounterRepository interface {
	// Increment adds one and returns the new value; the TTL is applied when
	// the counter is created.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the current value, or zero for a missing counter.
	Get(ctx context.Context, key string) (int64, error)

	// Reset deletes the counter.
	Reset(ctx context.Context, key string) error
}

// IdentityProvider is the upstream provider consulted when a presented token
// has no local session entry. A provider may silently rotate the token; when
// the returned token differs from the presented one the caller replaces its
// cookie.
type IdentityProvider interface {
	// Refresh validates the presented token upstream and returns the session
	// metadata plus the (possibly rotated) current token.
	Refresh(ctx context.Context, token string) (*sessionDomain.SessionEntry, string, error)
}

// VerifyResult is returned by SessionUseCase.Verify. RotatedToken is non-empty
// only when the upstream provider rotated the token during a refresh
// fall-through; callers then expose it for cookie replacement.
type VerifyResult struct {
	Entry        *sessionDomain.SessionEntry
	Token        string
	RotatedToken string
}

// SessionUseCase manages the session-token cache that gates access to the
// encryption engine.
type SessionUseCase interface {
	// Create issues a new bearer token and stores the session entry under the
	// tier-dependent TTL.
	Create(ctx context.Context, entry *sessionDomain.SessionEntry) (string, error)

	// Verify resolves a bearer token to its session entry per the lifecycle
	// state machine: blacklist check, cache hit with TTL bump, or refresh
	// fall-through to the identity provider.
	Verify(ctx context.Context, token string) (*VerifyResult, error)

	// Logout deletes the session and its cached DEK part and blacklists the
	// token.
	Logout(ctx context.Context, token string) error

	// InvalidateAllForSubject deletes every session entry and every cached
	// DEK-part entry for the subject, including the session that initiated
	// the call. Used exclusively by the password-change flow.
	InvalidateAllForSubject(ctx context.Context, subjectID uuid.UUID) error

	// IssueRegistrationToken creates a single-use registration grant for the
	// origin address, subject to per-IP rate limiting.
	IssueRegistrationToken(ctx context.Context, originIP string) (string, error)

	// ConsumeRegistrationToken atomically redeems a registration grant.
	ConsumeRegistrationToken(ctx context.Context, token string) (*sessionDomain.RegistrationGrant, error)
}

// DekCacheUseCase manages the balanced-tier server-held DEK parts.
type DekCacheUseCase interface {
	// CacheServerPart encrypts the server part under the active server-local
	// cache key and stores it for (subjectID, token).
	CacheServerPart(ctx context.Context, subjectID uuid.UUID, token, serverPart string) error

	// ReconstructFromCache decrypts the cached server part and recombines it
	// with the client part into the full DEK. Returns ErrDekCacheExpired when
	// no cache entry exists; callers re-authenticate.
	ReconstructFromCache(ctx context.Context, subjectID uuid.UUID, token, clientPart string) ([]byte, error)
}
