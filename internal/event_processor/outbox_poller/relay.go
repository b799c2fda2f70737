package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dispatch-ledger/internal/domain/outbox"
	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/platform/messaging/producers"
)

// ErrUndecodable marks an outbox payload that will never publish
var ErrUndecodable = errors.New("undecodable outbox payload")

// Relay delivers one outbox message to its collaborators
type Relay interface {
	Relay(ctx context.Context, message *outbox.Message) error
}

// EventRelay publishes the event to Kafka and, for point transfers, appends
// both signed lines to the points journal. The journal is optional.
type EventRelay struct {
	outboxRepo outbox.Repository
	publisher  producers.EventPublisher
	journal    points.JournalRepository
	logger     *slog.Logger
}

func NewEventRelay(
	outboxRepo outbox.Repository,
	publisher producers.EventPublisher,
	journal points.JournalRepository,
	logger *slog.Logger,
) *EventRelay {
	return &EventRelay{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		journal:    journal,
		logger:     logger,
	}
}

// Relay marks the message PROCESSED once every collaborator accepted it.
// Redelivery after a partial failure is safe: consumers dedupe on the event
// id and the journal rejects a second line for the same event and office.
func (r *EventRelay) Relay(ctx context.Context, message *outbox.Message) error {
	event, err := message.GetEvent()
	if err != nil {
		r.logger.Error("Failed to decode outbox payload", "outbox_id", message.ID, "error", err)
		if updateErr := r.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			r.logger.Error("Also failed to mark undecodable outbox message", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("%w: outbox %d: %w", ErrUndecodable, message.ID, err)
	}

	logger := r.logger.With("outbox_id", message.ID, "event_id", event.ID.String(), "event_type", string(event.Type))

	if event.Type == shared.EventPointsTransferred && r.journal != nil {
		if err := r.journalTransfer(ctx, event); err != nil {
			logger.Error("Failed to journal point transfer", "error", err)
			return err
		}
	}

	if err := r.publisher.PublishEvent(ctx, event); err != nil {
		return err
	}

	if err := r.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to mark outbox message as PROCESSED", "error", err)
		return fmt.Errorf("event %s published, but failed to mark outbox %d as PROCESSED: %w", event.ID, message.ID, err)
	}

	logger.Debug("Outbox message relayed")
	return nil
}

func (r *EventRelay) journalTransfer(ctx context.Context, event *shared.Event) error {
	var transfer points.Transfer
	if err := event.DecodeData(&transfer); err != nil {
		return fmt.Errorf("failed to decode transfer of event %s: %w", event.ID, err)
	}

	for _, entry := range transfer.JournalEntries(event.ID.String()) {
		err := r.journal.Append(ctx, entry)
		if errors.Is(err, points.ErrDuplicateJournalEntry{}) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to journal transfer %s for office %s: %w", transfer.ID, entry.OfficeID, err)
		}
	}
	return nil
}
