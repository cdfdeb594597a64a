package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/fieldvault/internal/metrics"
	sessionDomain "github.com/allisson/fieldvault/internal/session/domain"
)

// sessionUseCaseWithMetrics decorates SessionUseCase with metrics instrumentation.
type sessionUseCaseWithMetrics struct {
	next    SessionUseCase
	metrics metrics.BusinessMetrics
}

// NewSessionUseCaseWithMetrics wraps a SessionUseCase with metrics recording.
func NewSessionUseCaseWithMetrics(useCase SessionUseCase, m metrics.BusinessMetrics) SessionUseCase {
	return &sessionUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (s *sessionUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, "session", operation, status)
	s.metrics.RecordDuration(ctx, "session", operation, time.Since(start), status)
}

// Create records metrics for session creation.
func (s *sessionUseCaseWithMetrics) Create(
	ctx context.Context,
	entry *sessionDomain.SessionEntry,
) (string, error) {
	start := time.Now()
	token, err := s.next.Create(ctx, entry)
	s.record(ctx, "session_create", start, err)
	return token, err
}

// Verify records metrics for token verification.
func (s *sessionUseCaseWithMetrics) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	start := time.Now()
	result, err := s.next.Verify(ctx, token)
	s.record(ctx, "session_verify", start, err)
	return result, err
}

// Logout records metrics for logout operations.
func (s *sessionUseCaseWithMetrics) Logout(ctx context.Context, token string) error {
	start := time.Now()
	err := s.next.Logout(ctx, token)
	s.record(ctx, "session_logout", start, err)
	return err
}

// InvalidateAllForSubject records metrics for broadcast invalidation.
func (s *sessionUseCaseWithMetrics) InvalidateAllForSubject(ctx context.Context, subjectID uuid.UUID) error {
	start := time.Now()
	err := s.next.InvalidateAllForSubject(ctx, subjectID)
	s.record(ctx, "session_invalidate_all", start, err)
	return err
}

// IssueRegistrationToken records metrics for registration-grant issuance.
func (s *sessionUseCaseWithMetrics) IssueRegistrationToken(
	ctx context.Context,
	originIP string,
) (string, error) {
	start := time.Now()
	token, err := s.next.IssueRegistrationToken(ctx, originIP)
	s.record(ctx, "registration_token_issue", start, err)
	return token, err
}

// ConsumeRegistrationToken records metrics for registration-grant redemption.
func (s *sessionUseCaseWithMetrics) ConsumeRegistrationToken(
	ctx context.Context,
	token string,
) (*sessionDomain.RegistrationGrant, error) {
	start := time.Now()
	grant, err := s.next.ConsumeRegistrationToken(ctx, token)
	s.record(ctx, "registration_token_consume", start, err)
	return grant, err
}

// dekCacheUseCaseWithMetrics decorates DekCacheUseCase with metrics instrumentation.
type dekCacheUseCaseWithMetrics struct {
	next    DekCacheUseCase
	metrics metrics.BusinessMetrics
}

// NewDekCacheUseCaseWithMetrics wraps a DekCacheUseCase with metrics recording.
func NewDekCacheUseCaseWithMetrics(useCase DekCacheUseCase, m metrics.BusinessMetrics) DekCacheUseCase {
	return &dekCacheUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (d *dekCacheUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	d.metrics.RecordOperation(ctx, "session", operation, status)
	d.metrics.RecordDuration(ctx, "session", operation, time.Since(start), status)
}

// CacheServerPart records metrics for DEK-part caching.
func (d *dekCacheUseCaseWithMetrics) CacheServerPart(
	ctx context.Context,
	subjectID uuid.UUID,
	token, serverPart string,
) error {
	start := time.Now()
	err := d.next.CacheServerPart(ctx, subjectID, token, serverPart)
	d.record(ctx, "dek_cache_store", start, err)
	return err
}

// ReconstructFromCache records metrics for DEK reconstruction.
func (d *dekCacheUseCaseWithMetrics) ReconstructFromCache(
	ctx context.Context,
	subjectID uuid.UUID,
	token, clientPart string,
) ([]byte, error) {
	start := time.Now()
	dek, err := d.next.ReconstructFromCache(ctx, subjectID, token, clientPart)
	d.record(ctx, "dek_reconstruct", start, err)
	return dek, err
}
