package call

import (
	"fmt"
	"strings"
	"time"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotAssignedWorker = fmt.Errorf("%w: call is assigned to another worker", shared.ErrInvalidTransition)
	ErrEmptyWorkerID     = fmt.Errorf("%w: worker id cannot be empty", shared.ErrValidation)
)

// Call is one transportation job owned by exactly one office
type Call struct {
	ID                 uuid.UUID     `json:"id"`
	RegionID           string        `json:"region_id"`
	OfficeID           string        `json:"office_id"`
	Status             Status        `json:"status"`
	CustomerName       string        `json:"customer_name,omitempty"`
	PhoneNumber        string        `json:"phone_number"`
	Departure          string        `json:"departure"`
	Destination        string        `json:"destination"`
	Fare               int64         `json:"fare"`
	AssignedWorkerID   string        `json:"assigned_worker_id,omitempty"`
	AssignedWorkerName string        `json:"assigned_worker_name,omitempty"`
	PaymentMethod      PaymentMethod `json:"payment_method,omitempty"`
	CashAmount         int64         `json:"cash_amount"`
	CardAmount         int64         `json:"card_amount"`
	CreditAmount       int64         `json:"credit_amount"`
	StatusReason       string        `json:"status_reason,omitempty"`
	SourceSharedCallID *uuid.UUID    `json:"source_shared_call_id,omitempty"`
	Version            int           `json:"version"` // For optimistic locking
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
}

// NewCallParams carries the fields a dispatcher supplies for a new call
type NewCallParams struct {
	Scope        shared.Scope
	CustomerName string
	PhoneNumber  string
	Departure    string
	Destination  string
	Fare         int64
}

// NewCall creates a WAITING call inside the given office
func NewCall(p NewCallParams, at time.Time) (*Call, error) {
	if err := p.Scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Departure) == "" {
		return nil, shared.ValidationError{Field: "departure", Message: "is required"}
	}
	if strings.TrimSpace(p.Destination) == "" {
		return nil, shared.ValidationError{Field: "destination", Message: "is required"}
	}
	if p.Fare < 0 {
		return nil, shared.ValidationError{Field: "fare", Message: "cannot be negative"}
	}

	return &Call{
		ID:           uuid.New(),
		RegionID:     p.Scope.RegionID,
		OfficeID:     p.Scope.OfficeID,
		Status:       StatusWaiting,
		CustomerName: p.CustomerName,
		PhoneNumber:  p.PhoneNumber,
		Departure:    p.Departure,
		Destination:  p.Destination,
		Fare:         p.Fare,
		Version:      1,
		CreatedAt:    at,
		UpdatedAt:    at,
	}, nil
}

func (c *Call) Scope() shared.Scope {
	return shared.Scope{RegionID: c.RegionID, OfficeID: c.OfficeID}
}

// Path is the hierarchical document path of the call
func (c *Call) Path() string {
	return c.Scope().CallPath(c.ID.String())
}

func (c *Call) transitionTo(to Status, at time.Time) error {
	if err := CheckTransition(c.ID.String(), c.Status, to); err != nil {
		return err
	}
	c.Status = to
	c.UpdatedAt = at
	c.Version++
	return nil
}

// Assign hands a WAITING call to a worker
func (c *Call) Assign(workerID, workerName string, at time.Time) error {
	if strings.TrimSpace(workerID) == "" {
		return ErrEmptyWorkerID
	}
	if err := c.transitionTo(StatusAssigned, at); err != nil {
		return err
	}
	c.AssignedWorkerID = workerID
	c.AssignedWorkerName = workerName
	return nil
}

// Accept is only allowed for the worker the call was assigned to
func (c *Call) Accept(workerID string, at time.Time) error {
	if c.Status == StatusAssigned && c.AssignedWorkerID != workerID {
		return ErrNotAssignedWorker
	}
	return c.transitionTo(StatusAccepted, at)
}

func (c *Call) Start(at time.Time) error {
	return c.transitionTo(StatusInProgress, at)
}

// RequestSettlement attaches the payment breakdown and moves the call to AWAITING_SETTLEMENT
func (c *Call) RequestSettlement(b FareBreakdown, at time.Time) error {
	if err := CheckTransition(c.ID.String(), c.Status, StatusAwaitingSettlement); err != nil {
		return err
	}
	resolved, err := b.Resolve(c.Fare)
	if err != nil {
		return err
	}
	if err := c.transitionTo(StatusAwaitingSettlement, at); err != nil {
		return err
	}
	c.Fare = resolved.Fare
	c.PaymentMethod = resolved.Method
	c.CashAmount = resolved.CashAmount
	c.CardAmount = resolved.CardAmount
	c.CreditAmount = resolved.CreditAmount
	return nil
}

func (c *Call) FinalizeSettlement(at time.Time) error {
	if err := c.transitionTo(StatusCompleted, at); err != nil {
		return err
	}
	c.CompletedAt = &at
	return nil
}

// Cancel is idempotent: canceling a canceled call leaves it untouched
func (c *Call) Cancel(reason string, at time.Time) error {
	if c.Status == StatusCanceled {
		return nil
	}
	if err := c.transitionTo(StatusCanceled, at); err != nil {
		return err
	}
	c.StatusReason = reason
	return nil
}

func (c *Call) Hold(reason string, at time.Time) error {
	if err := c.transitionTo(StatusHold, at); err != nil {
		return err
	}
	c.StatusReason = reason
	return nil
}

// Resume returns a held call to the waiting queue without an assignee
func (c *Call) Resume(at time.Time) error {
	if err := c.transitionTo(StatusWaiting, at); err != nil {
		return err
	}
	c.AssignedWorkerID = ""
	c.AssignedWorkerName = ""
	c.StatusReason = ""
	return nil
}
