package service

import (
	"time"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Notification is the message an external collaborator sends once the
// receiving office finished a claimed call
type Notification struct {
	SharedCallID  uuid.UUID `json:"shared_call_id"`
	CompletedAt   time.Time `json:"completed_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (n *Notification) Validate() error {
	if n.SharedCallID == uuid.Nil {
		return shared.ValidationError{Field: "shared_call_id", Message: "is required"}
	}
	if n.CompletedAt.IsZero() {
		return shared.ValidationError{Field: "completed_at", Message: "is required"}
	}
	return nil
}
