package settlement

import (
	"strings"
	"time"

	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// RecordKind distinguishes completed trips from compensating records
type RecordKind string

const (
	KindTrip       RecordKind = "TRIP"
	KindAdjustment RecordKind = "ADJUSTMENT"
)

// WorkDateLayout is the layout of Record.WorkDate
const WorkDateLayout = "2006-01-02"

// Record is the settlement line of one completed trip, or a compensating adjustment.
// Finalized records are never updated.
type Record struct {
	ID            uuid.UUID          `json:"id"`
	Kind          RecordKind         `json:"kind"`
	CallID        string             `json:"call_id"`
	RegionID      string             `json:"region_id"`
	OfficeID      string             `json:"office_id"`
	DriverID      string             `json:"driver_id,omitempty"`
	DriverName    string             `json:"driver_name"`
	CustomerName  string             `json:"customer_name"`
	Departure     string             `json:"departure"`
	Destination   string             `json:"destination"`
	Fare          int64              `json:"fare"`
	PaymentMethod call.PaymentMethod `json:"payment_method"`
	CashAmount    int64              `json:"cash_amount"`
	CardAmount    int64              `json:"card_amount"`
	CreditAmount  int64              `json:"credit_amount"`
	CompletedAt   time.Time          `json:"completed_at"`
	WorkDate      string             `json:"work_date"`
	IsFinalized   bool               `json:"is_finalized"`
	SessionID     *uuid.UUID         `json:"session_id,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Trip is the input of recordCompletedTrip. CallID is its idempotency key.
type Trip struct {
	CallID        string             `json:"call_id"`
	Scope         shared.Scope       `json:"scope"`
	DriverID      string             `json:"driver_id"`
	DriverName    string             `json:"driver_name"`
	CustomerName  string             `json:"customer_name"`
	CustomerPhone string             `json:"customer_phone"`
	Departure     string             `json:"departure"`
	Destination   string             `json:"destination"`
	Breakdown     call.FareBreakdown `json:"breakdown"`
	CompletedAt   time.Time          `json:"completed_at"`
}

// TripFromCall builds the settlement input of a COMPLETED call
func TripFromCall(c *call.Call) Trip {
	completedAt := c.UpdatedAt
	if c.CompletedAt != nil {
		completedAt = *c.CompletedAt
	}
	return Trip{
		CallID:        c.ID.String(),
		Scope:         c.Scope(),
		DriverID:      c.AssignedWorkerID,
		DriverName:    c.AssignedWorkerName,
		CustomerName:  c.CustomerName,
		CustomerPhone: c.PhoneNumber,
		Departure:     c.Departure,
		Destination:   c.Destination,
		Breakdown: call.FareBreakdown{
			Method:       c.PaymentMethod,
			Fare:         c.Fare,
			CashAmount:   c.CashAmount,
			CardAmount:   c.CardAmount,
			CreditAmount: c.CreditAmount,
		},
		CompletedAt: completedAt,
	}
}

// NewTripRecord validates the trip and builds an unfinalized record.
// WorkDate is the completion day in loc.
func NewTripRecord(t Trip, loc *time.Location, at time.Time) (*Record, error) {
	if strings.TrimSpace(t.CallID) == "" {
		return nil, shared.ValidationError{Field: "call_id", Message: "is required"}
	}
	if err := t.Scope.Validate(); err != nil {
		return nil, err
	}
	breakdown, err := t.Breakdown.Resolve(t.Breakdown.Fare)
	if err != nil {
		return nil, err
	}
	completedAt := t.CompletedAt
	if completedAt.IsZero() {
		completedAt = at
	}

	return &Record{
		ID:            uuid.New(),
		Kind:          KindTrip,
		CallID:        t.CallID,
		RegionID:      t.Scope.RegionID,
		OfficeID:      t.Scope.OfficeID,
		DriverID:      t.DriverID,
		DriverName:    t.DriverName,
		CustomerName:  t.CustomerName,
		Departure:     t.Departure,
		Destination:   t.Destination,
		Fare:          breakdown.Fare,
		PaymentMethod: breakdown.Method,
		CashAmount:    breakdown.CashAmount,
		CardAmount:    breakdown.CardAmount,
		CreditAmount:  breakdown.CreditAmount,
		CompletedAt:   completedAt,
		WorkDate:      completedAt.In(loc).Format(WorkDateLayout),
		CreatedAt:     at,
	}, nil
}

// NewAdjustment builds a compensating record correcting a finalized trip.
// fareDelta may be negative.
func NewAdjustment(original *Record, fareDelta int64, reason string, loc *time.Location, at time.Time) (*Record, error) {
	if fareDelta == 0 {
		return nil, shared.ValidationError{Field: "fare_delta", Message: "cannot be zero"}
	}
	if strings.TrimSpace(reason) == "" {
		return nil, shared.ValidationError{Field: "reason", Message: "is required"}
	}
	return &Record{
		ID:            uuid.New(),
		Kind:          KindAdjustment,
		CallID:        original.CallID,
		RegionID:      original.RegionID,
		OfficeID:      original.OfficeID,
		DriverID:      original.DriverID,
		DriverName:    original.DriverName,
		CustomerName:  original.CustomerName,
		Departure:     original.Departure,
		Destination:   original.Destination,
		Fare:          fareDelta,
		PaymentMethod: original.PaymentMethod,
		CompletedAt:   at,
		WorkDate:      at.In(loc).Format(WorkDateLayout),
		Reason:        reason,
		CreatedAt:     at,
	}, nil
}
