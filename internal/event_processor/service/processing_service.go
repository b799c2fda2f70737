package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dispatch-ledger/internal/domain/shared"
)

// ErrRejected marks notifications that can never be applied. The consumer
// dead-letters them instead of asking Kafka for a redelivery.
var ErrRejected = errors.New("notification rejected")

type ProcessingServiceImpl struct {
	completer SharedCallCompleter
	logger    *slog.Logger
}

func NewProcessingService(completer SharedCallCompleter, logger *slog.Logger) ProcessingService {
	return &ProcessingServiceImpl{
		completer: completer,
		logger:    logger,
	}
}

// ProcessNotification completes the shared call named by notification.
// Repeated notifications succeed without writing.
func (s *ProcessingServiceImpl) ProcessNotification(ctx context.Context, notification *Notification) error {
	logger := s.logger
	if notification.CorrelationID != "" {
		logger = s.logger.With("correlation_id", notification.CorrelationID)
	}

	if err := notification.Validate(); err != nil {
		logger.Warn("Invalid completion notification", "error", err)
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	id := notification.SharedCallID.String()
	logger.Info("Processing completion notification", "shared_call_id", id)

	sc, err := s.completer.Complete(ctx, notification.SharedCallID, notification.CompletedAt)
	if err != nil {
		if isFinal(err) {
			logger.Warn("Completion notification cannot be applied", "shared_call_id", id, "error", err)
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}
		logger.Error("Failed to complete shared call", "shared_call_id", id, "error", err)
		return fmt.Errorf("failed to complete shared call %s: %w", id, err)
	}

	logger.Info("Shared call completed from notification", "shared_call_id", id, "status", string(sc.Status))
	return nil
}

// isFinal reports domain outcomes that stay the same on redelivery.
// Anything else, including store outages, is left to Kafka to retry.
func isFinal(err error) bool {
	return errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrInvalidTransition) ||
		errors.Is(err, shared.ErrValidation)
}
