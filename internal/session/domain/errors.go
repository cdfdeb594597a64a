package domain

import (
	"github.com/allisson/fieldvault/internal/errors"
)

// Session and cache error definitions.
//
// These wrap the app-wide sentinels from internal/errors so callers can
// pattern-match with errors.Is.
var (
	// ErrSessionNotFound indicates no session entry exists for the presented
	// token and the identity provider could not refresh it.
	ErrSessionNotFound = errors.Wrap(errors.ErrUnauthorized, "session not found")

	// ErrSessionBlacklisted indicates the token was explicitly denied at
	// logout. Covers the race where an upstream provider token remains valid
	// past local logout.
	ErrSessionBlacklisted = errors.Wrap(errors.ErrUnauthorized, "session blacklisted")

	// ErrDekCacheExpired indicates no cached server-held DEK part exists for
	// the session. Recoverable by re-authentication; not a security event.
	ErrDekCacheExpired = errors.Wrap(errors.ErrUnauthorized, "dek cache entry expired")

	// ErrRegistrationTokenInvalid indicates the registration grant is missing,
	// expired, or already consumed.
	ErrRegistrationTokenInvalid = errors.Wrap(errors.ErrUnauthorized, "registration token invalid")

	// ErrRateLimited indicates registration-grant issuance was throttled for
	// the origin address.
	ErrRateLimited = errors.Wrap(errors.ErrForbidden, "rate limited")

	// ErrAccountLocked indicates too many failed login attempts; the subject
	// is locked out for the configured duration.
	ErrAccountLocked = errors.Wrap(errors.ErrForbidden, "account locked")

	// ErrPasswordChangeInProgress indicates another password change already
	// holds the per-subject lock.
	ErrPasswordChangeInProgress = errors.Wrap(errors.ErrConflict, "password change in progress")
)
