package call

import (
	"github.com/dispatch-ledger/internal/domain/shared"
)

// Status is the closed set of call lifecycle states
type Status string

const (
	StatusWaiting            Status = "WAITING"
	StatusAssigned           Status = "ASSIGNED"
	StatusAccepted           Status = "ACCEPTED"
	StatusInProgress         Status = "IN_PROGRESS"
	StatusAwaitingSettlement Status = "AWAITING_SETTLEMENT"
	StatusCompleted          Status = "COMPLETED"
	StatusCanceled           Status = "CANCELED"
	StatusHold               Status = "HOLD"
)

// transitions is the only place legal status changes are defined.
// Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusWaiting:            {StatusAssigned, StatusCanceled, StatusHold},
	StatusAssigned:           {StatusAccepted, StatusCanceled, StatusHold},
	StatusAccepted:           {StatusInProgress, StatusCanceled, StatusHold},
	StatusInProgress:         {StatusAwaitingSettlement, StatusCanceled, StatusHold},
	StatusAwaitingSettlement: {StatusCompleted, StatusCanceled, StatusHold},
	StatusHold:               {StatusWaiting, StatusCanceled},
}

// AllStatuses lists every status in lifecycle order
func AllStatuses() []Status {
	return []Status{
		StatusWaiting, StatusAssigned, StatusAccepted, StatusInProgress,
		StatusAwaitingSettlement, StatusCompleted, StatusCanceled, StatusHold,
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusAssigned, StatusAccepted, StatusInProgress,
		StatusAwaitingSettlement, StatusCompleted, StatusCanceled, StatusHold:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// ParseStatus converts untrusted input into a Status
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", shared.ValidationError{Field: "status", Message: "unknown call status " + raw}
	}
	return s, nil
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition validates from -> to without touching any store.
// Cancelling an already canceled call is accepted as a no-op.
func CheckTransition(id string, from, to Status) error {
	if to == StatusCanceled && from == StatusCanceled {
		return nil
	}
	if !CanTransition(from, to) {
		return shared.InvalidTransitionError{Entity: "call", ID: id, From: string(from), To: string(to)}
	}
	return nil
}
