package outbox

import (
	"context"
	"strconv"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages transactional outbox message persistence
type Repository interface {
	Create(ctx context.Context, message *Message) error
	GetPending(ctx context.Context, limit int) ([]*Message, error)
	UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error
	IncrementAttempts(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	GetByEventID(ctx context.Context, eventID uuid.UUID) (*Message, error)
	WithTx(tx pgx.Tx) Repository
}

// Enqueue wraps event into a message and stores it through repo
func Enqueue(ctx context.Context, repo Repository, event *shared.Event) error {
	msg, err := NewMessage(event)
	if err != nil {
		return err
	}
	return repo.Create(ctx, msg)
}

// ErrMessageNotFound indicates missing outbox message
type ErrMessageNotFound struct {
	ID int64
}

func (e ErrMessageNotFound) Error() string {
	return "outbox message not found: " + strconv.FormatInt(e.ID, 10)
}

// ErrDuplicateMessage indicates event uniqueness violation
type ErrDuplicateMessage struct {
	EventID uuid.UUID
}

func (e ErrDuplicateMessage) Error() string {
	return "duplicate outbox message: " + e.EventID.String()
}

// EnqueueEvent builds the event envelope for data and stores it through repo
func EnqueueEvent(ctx context.Context, repo Repository, eventType shared.EventType, aggregateID string, scope shared.Scope, data any) error {
	event, err := shared.NewEvent(eventType, aggregateID, scope, data)
	if err != nil {
		return err
	}
	return Enqueue(ctx, repo, event)
}
