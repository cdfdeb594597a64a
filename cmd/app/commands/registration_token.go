package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	sessionUsecase "github.com/allisson/fieldvault/internal/session/usecase"
)

// RunCreateRegistrationToken issues a single-use registration grant.
//
// The grant is stored in the cache store and consumed atomically by the first
// registration that presents it. Issuance goes through the same per-IP rate
// limiting as API-driven issuance; originIP identifies the requester for that
// purpose.
func RunCreateRegistrationToken(
	ctx context.Context,
	sessionUseCase sessionUsecase.SessionUseCase,
	logger *slog.Logger,
	writer io.Writer,
	originIP string,
) error {
	token, err := sessionUseCase.IssueRegistrationToken(ctx, originIP)
	if err != nil {
		return fmt.Errorf("failed to issue registration token: %w", err)
	}

	logger.Info("registration token issued", slog.String("origin_ip", originIP))

	fmt.Fprintln(writer, "# Single-use registration token:")
	fmt.Fprintln(writer, token)

	return nil
}
