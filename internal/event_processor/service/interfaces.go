package service

import (
	"context"
	"time"

	"github.com/dispatch-ledger/internal/domain/sharedcall"
	"github.com/google/uuid"
)

// ProcessingService applies completion notifications of claimed shared calls
type ProcessingService interface {
	ProcessNotification(ctx context.Context, notification *Notification) error
}

// SharedCallCompleter moves a claimed shared call to COMPLETED
type SharedCallCompleter interface {
	Complete(ctx context.Context, sharedCallID uuid.UUID, completedAt time.Time) (*sharedcall.SharedCall, error)
}
