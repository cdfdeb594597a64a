// Package domain defines the identity record and the typed schemas for
// encrypted fields.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/fieldvault/internal/errors"
	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
)

// Identity is the persisted identity record. The four key artifacts (salt,
// user-wrapped DEK, admin-wrapped DEK, encrypted fields) are written in a
// single INSERT: a partially stored record is an unrecoverable identity, so
// there is no partial-write path.
type Identity struct {
	ID              uuid.UUID
	Email           string
	PasswordHash    string
	Salt            string
	UserWrappedDek  string
	AdminWrappedDek string
	EncryptedFields string
	Tier            sessionDomain.Tier
	Role            sessionDomain.Role
	TenantID        uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProfileFields is the typed schema for an identity's private attributes.
// Records persist only the sealed form of this struct; the explicit schema
// prevents shape drift between writer and reader.
type ProfileFields struct {
	Name             string   `json:"name"`
	WeeklyPriorities []string `json:"weekly_priorities"`
}

// PrioritySubmissionFields is the typed schema for a weekly priority
// submission, sealed under the owning identity's DEK.
type PrioritySubmissionFields struct {
	Week       string   `json:"week"`
	Priorities []string `json:"priorities"`
	Note       string   `json:"note"`
}

// Domain-specific errors for identity operations.
var (
	// ErrIdentityNotFound indicates the requested identity does not exist.
	ErrIdentityNotFound = errors.Wrap(errors.ErrNotFound, "identity not found")

	// ErrIdentityAlreadyExists indicates an identity with the same email already exists.
	ErrIdentityAlreadyExists = errors.Wrap(errors.ErrConflict, "identity already exists")
)
