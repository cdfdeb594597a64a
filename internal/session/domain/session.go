// Package domain defines the session-security domain models: session entries,
// security tiers, TTL policy, and registration grants.
//
// A session entry binds an opaque bearer token to identity and role metadata
// with a tier-dependent expiry. Per token the lifecycle is a small state
// machine: Absent, then Active after authentication, then one of Refreshed
// (re-keyed under a rotated token), Expired (TTL), or Invalidated (logout or
// password change).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the caller-selected trust/convenience trade-off governing where the
// DEK lives for the lifetime of a session.
type Tier string

const (
	// TierHigh keeps the full DEK client-side; nothing key-related is cached
	// server-side.
	TierHigh Tier = "high"

	// TierBalanced splits the DEK: the client holds one half, the server
	// caches the other half encrypted at rest.
	TierBalanced Tier = "balanced"

	// TierConvenience keeps the full DEK client-side with long-lived
	// persistent login available.
	TierConvenience Tier = "convenience"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierHigh, TierBalanced, TierConvenience:
		return true
	}
	return false
}

// Role classifies a session's privilege level for TTL policy.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Session TTL policy values.
const (
	// SessionTTL is the default session lifetime for every tier.
	SessionTTL = 8 * time.Hour

	// PersistentSessionTTL applies when the caller requests persistent login
	// on the high or convenience tiers.
	PersistentSessionTTL = 30 * 24 * time.Hour

	// AdminSessionTTL caps any administrative session regardless of tier or
	// persistent login.
	AdminSessionTTL = 15 * time.Minute

	// DekCacheTTL is the lifetime of a cached server-held split-DEK part,
	// refreshed on each read.
	DekCacheTTL = 30 * time.Minute

	// RegistrationTokenTTL is the lifetime of a single-use registration grant.
	RegistrationTokenTTL = 10 * time.Minute

	// PasswordChangeLockTTL bounds the per-subject lock that serializes the
	// unwrap, re-seal, and broadcast-invalidate sequence.
	PasswordChangeLockTTL = 30 * time.Second
)

// SessionEntry is the server-side record bound to a bearer token.
type SessionEntry struct {
	SubjectID   uuid.UUID `json:"subject_id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Tier        Tier      `json:"tier"`
	Persistent  bool      `json:"persistent"`
	IssuedAt    time.Time `json:"issued_at"`
}

// TTL returns the session lifetime mandated by policy.
//
// Administrative sessions are capped at 15 minutes regardless of tier,
// overriding everything else. Persistent login extends only the high and
// convenience tiers; the balanced tier always uses the default because its
// server-held DEK part must not outlive short cache windows.
func (s SessionEntry) TTL() time.Duration {
	if s.Role == RoleAdmin {
		return AdminSessionTTL
	}
	if s.Persistent && (s.Tier == TierHigh || s.Tier == TierConvenience) {
		return PersistentSessionTTL
	}
	return SessionTTL
}

// RegistrationGrant is a single-use, short-lived authorization to register,
// recording when and from where it was issued. It is consumed atomically by
// the one registration it authorizes.
type RegistrationGrant struct {
	IssuedAt time.Time `json:"issued_at"`
	OriginIP string    `json:"origin_ip"`
}
