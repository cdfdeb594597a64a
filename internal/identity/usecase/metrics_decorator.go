package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/fieldvault/internal/identity/domain"
	"github.com/allisson/fieldvault/internal/metrics"
	sessionUsecase "github.com/allisson/fieldvault/internal/session/usecase"
)

// identityUseCaseWithMetrics decorates UseCase with metrics instrumentation.
type identityUseCaseWithMetrics struct {
	next    UseCase
	metrics metrics.BusinessMetrics
}

// NewIdentityUseCaseWithMetrics wraps a UseCase with metrics recording.
func NewIdentityUseCaseWithMetrics(useCase UseCase, m metrics.BusinessMetrics) UseCase {
	return &identityUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (i *identityUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	i.metrics.RecordOperation(ctx, "identity", operation, status)
	i.metrics.RecordDuration(ctx, "identity", operation, time.Since(start), status)
}

// Register records metrics for identity registration.
func (i *identityUseCaseWithMetrics) Register(ctx context.Context, input RegisterInput) (*domain.Identity, error) {
	start := time.Now()
	identity, err := i.next.Register(ctx, input)
	i.record(ctx, "identity_register", start, err)
	return identity, err
}

// Login records metrics for login operations.
func (i *identityUseCaseWithMetrics) Login(ctx context.Context, input LoginInput) (*LoginOutput, error) {
	start := time.Now()
	output, err := i.next.Login(ctx, input)
	i.record(ctx, "identity_login", start, err)
	return output, err
}

// ChangePassword records metrics for password changes.
func (i *identityUseCaseWithMetrics) ChangePassword(
	ctx context.Context,
	subjectID uuid.UUID,
	oldPassword, newPassword string,
) (*LoginOutput, error) {
	start := time.Now()
	output, err := i.next.ChangePassword(ctx, subjectID, oldPassword, newPassword)
	i.record(ctx, "identity_change_password", start, err)
	return output, err
}

// UpdateProfile records metrics for profile updates.
func (i *identityUseCaseWithMetrics) UpdateProfile(
	ctx context.Context,
	subjectID uuid.UUID,
	dek []byte,
	fields domain.ProfileFields,
) error {
	start := time.Now()
	err := i.next.UpdateProfile(ctx, subjectID, dek, fields)
	i.record(ctx, "identity_update_profile", start, err)
	return err
}

// Profile records metrics for profile reads.
func (i *identityUseCaseWithMetrics) Profile(
	ctx context.Context,
	subjectID uuid.UUID,
	dek []byte,
) (*domain.ProfileFields, error) {
	start := time.Now()
	fields, err := i.next.Profile(ctx, subjectID, dek)
	i.record(ctx, "identity_profile", start, err)
	return fields, err
}

// Authenticate records metrics for token authentication.
func (i *identityUseCaseWithMetrics) Authenticate(
	ctx context.Context,
	token string,
) (*sessionUsecase.VerifyResult, error) {
	start := time.Now()
	result, err := i.next.Authenticate(ctx, token)
	i.record(ctx, "identity_authenticate", start, err)
	return result, err
}
