package points

import (
	"strings"
	"time"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Balance is the point balance of one office. It may go negative.
type Balance struct {
	OfficeID  string    `json:"office_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ratio is the share of a fare paid in points to the office that published a claimed call
type Ratio struct {
	percent decimal.Decimal
}

// DefaultRatioPercent is used when no ratio is configured
const DefaultRatioPercent = 10

// NewRatio validates a percentage in (0, 100]
func NewRatio(percent float64) (Ratio, error) {
	p := decimal.NewFromFloat(percent)
	if p.LessThanOrEqual(decimal.Zero) || p.GreaterThan(hundred) {
		return Ratio{}, shared.ValidationError{Field: "point_ratio", Message: "must be in (0, 100]"}
	}
	return Ratio{percent: p}, nil
}

// MustRatio panics on an invalid percentage; intended for constants and tests
func MustRatio(percent float64) Ratio {
	r, err := NewRatio(percent)
	if err != nil {
		panic(err)
	}
	return r
}

// Apply returns round(fare * percent / 100), rounding half away from zero
func (r Ratio) Apply(fare int64) int64 {
	return decimal.NewFromInt(fare).Mul(r.percent).Div(hundred).Round(0).IntPart()
}

func (r Ratio) String() string {
	return r.percent.String() + "%"
}

// Transfer is one paired point movement: Amount leaves FromOfficeID and reaches ToOfficeID
type Transfer struct {
	ID           uuid.UUID  `json:"id"`
	FromOfficeID string     `json:"from_office_id"`
	ToOfficeID   string     `json:"to_office_id"`
	Amount       int64      `json:"amount"`
	Reason       string     `json:"reason"`
	SharedCallID *uuid.UUID `json:"shared_call_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Transfer reasons
const (
	ReasonClaim       = "SHARED_CALL_CLAIM"
	ReasonAdminCharge = "ADMIN_CHARGE"
)

// NewTransfer validates and builds a transfer
func NewTransfer(from, to string, amount int64, reason string, at time.Time) (*Transfer, error) {
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return nil, shared.ValidationError{Field: "office_id", Message: "both offices are required"}
	}
	if from == to {
		return nil, shared.ValidationError{Field: "office_id", Message: "cannot transfer points to the same office"}
	}
	if amount < 0 {
		return nil, shared.ValidationError{Field: "amount", Message: "cannot be negative"}
	}
	if strings.TrimSpace(reason) == "" {
		return nil, shared.ValidationError{Field: "reason", Message: "is required"}
	}
	return &Transfer{
		ID:           uuid.New(),
		FromOfficeID: from,
		ToOfficeID:   to,
		Amount:       amount,
		Reason:       reason,
		CreatedAt:    at,
	}, nil
}

// JournalEntries expands the transfer into its two signed journal lines
func (t *Transfer) JournalEntries(eventID string) []*JournalEntry {
	sharedCallID := ""
	if t.SharedCallID != nil {
		sharedCallID = t.SharedCallID.String()
	}
	return []*JournalEntry{
		{
			EventID:              eventID,
			TransferID:           t.ID.String(),
			OfficeID:             t.FromOfficeID,
			CounterpartyOfficeID: t.ToOfficeID,
			Delta:                -t.Amount,
			Reason:               t.Reason,
			SharedCallID:         sharedCallID,
			CreatedAt:            t.CreatedAt,
		},
		{
			EventID:              eventID,
			TransferID:           t.ID.String(),
			OfficeID:             t.ToOfficeID,
			CounterpartyOfficeID: t.FromOfficeID,
			Delta:                t.Amount,
			Reason:               t.Reason,
			SharedCallID:         sharedCallID,
			CreatedAt:            t.CreatedAt,
		},
	}
}
