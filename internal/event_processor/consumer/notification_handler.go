package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dispatch-ledger/internal/event_processor/service"
	"github.com/dispatch-ledger/internal/platform/messaging/producers"
)

// NotificationHandler handles shared call completion notifications from Kafka
type NotificationHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

func NewNotificationHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *NotificationHandler {
	return &NotificationHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger,
	}
}

// HandleMessage returns nil when the message is done with, either applied or
// dead-lettered. A returned error leaves the offset uncommitted.
func (h *NotificationHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var notification service.Notification
	if err := json.Unmarshal(value, &notification); err != nil {
		h.logger.Error("Failed to unmarshal completion notification", "error", err, "message_key", string(key))
		return h.deadLetter(ctx, key, value, fmt.Sprintf("malformed notification: %s", err))
	}

	logger := h.logger
	if notification.CorrelationID != "" {
		logger = h.logger.With("correlation_id", notification.CorrelationID)
	}
	logger.Info("Received completion notification", "shared_call_id", notification.SharedCallID.String())

	err := h.processingService.ProcessNotification(ctx, &notification)
	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrRejected) {
		return h.deadLetter(ctx, key, value, err.Error())
	}

	logger.Error("Failed to process completion notification, leaving it for redelivery",
		"shared_call_id", notification.SharedCallID.String(),
		"error", err,
	)
	return fmt.Errorf("processing notification for %s failed: %w", notification.SharedCallID.String(), err)
}

func (h *NotificationHandler) deadLetter(ctx context.Context, key, value []byte, reason string) error {
	if h.producer == nil {
		h.logger.Warn("Dropping unprocessable notification, no DLQ configured", "message_key", string(key), "reason", reason)
		return nil
	}

	if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		if errors.Is(err, producers.ErrDLQDisabled) {
			h.logger.Warn("Dropping unprocessable notification, DLQ disabled", "message_key", string(key), "reason", reason)
			return nil
		}
		h.logger.Error("Failed to publish notification to DLQ", "message_key", string(key), "dlq_error", err)
		return fmt.Errorf("failed to dead-letter notification: %w", err)
	}

	h.logger.Info("Published unprocessable notification to DLQ", "message_key", string(key), "reason", reason)
	return nil
}
