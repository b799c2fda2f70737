package credit

import (
	"sort"
	"strings"
	"time"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Account tracks the unpaid balance of one customer within an office.
// TotalOutstanding always equals the sum of Entry.Outstanding().
type Account struct {
	ID               uuid.UUID  `json:"id"`
	OfficeID         string     `json:"office_id"`
	LookupKey        string     `json:"lookup_key"`
	CustomerPhone    string     `json:"customer_phone,omitempty"`
	CustomerName     string     `json:"customer_name,omitempty"`
	TotalOutstanding int64      `json:"total_outstanding"`
	Entries          []*Entry   `json:"entries"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastPaidAt       *time.Time `json:"last_paid_at,omitempty"`
}

// Entry is one credited trip
type Entry struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	CallID      string    `json:"call_id,omitempty"`
	Date        string    `json:"date"`
	Departure   string    `json:"departure"`
	Destination string    `json:"destination"`
	Amount      int64     `json:"amount"`
	PaidAmount  int64     `json:"paid_amount"`
	CreatedAt   time.Time `json:"created_at"`
}

func (e *Entry) Outstanding() int64 {
	return e.Amount - e.PaidAmount
}

func (e *Entry) Paid() bool {
	return e.PaidAmount >= e.Amount
}

// Detail describes the trip being put on credit
type Detail struct {
	CallID      string `json:"call_id"`
	Date        string `json:"date"`
	Departure   string `json:"departure"`
	Destination string `json:"destination"`
}

// Customer identifies whom the credit belongs to. Phone wins over name.
type Customer struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// NewEntry validates and builds an entry for the given account
func NewEntry(accountID uuid.UUID, amount int64, d Detail, at time.Time) (*Entry, error) {
	if amount <= 0 {
		return nil, shared.ValidationError{Field: "amount", Message: "must be positive"}
	}
	date := d.Date
	if strings.TrimSpace(date) == "" {
		date = at.Format("2006-01-02")
	}
	return &Entry{
		ID:          uuid.New(),
		AccountID:   accountID,
		CallID:      d.CallID,
		Date:        date,
		Departure:   d.Departure,
		Destination: d.Destination,
		Amount:      amount,
		CreatedAt:   at,
	}, nil
}

// ApplyPayment pays min(amount, TotalOutstanding) against unpaid entries, oldest first.
// It returns the applied amount and the entries whose paid amount changed.
func (a *Account) ApplyPayment(amount int64, at time.Time) (int64, []*Entry, error) {
	if amount <= 0 {
		return 0, nil, shared.ValidationError{Field: "amount", Message: "must be positive"}
	}

	applied := amount
	if applied > a.TotalOutstanding {
		applied = a.TotalOutstanding
	}

	sort.SliceStable(a.Entries, func(i, j int) bool {
		return a.Entries[i].CreatedAt.Before(a.Entries[j].CreatedAt)
	})

	remaining := applied
	var touched []*Entry
	for _, e := range a.Entries {
		if remaining == 0 {
			break
		}
		if e.Paid() {
			continue
		}
		pay := e.Outstanding()
		if pay > remaining {
			pay = remaining
		}
		e.PaidAmount += pay
		remaining -= pay
		touched = append(touched, e)
	}

	// entries and total disagree only if the stored account is already inconsistent
	applied -= remaining
	a.TotalOutstanding -= applied
	a.UpdatedAt = at
	a.LastPaidAt = &at
	return applied, touched, nil
}

// Consistent reports whether TotalOutstanding matches the unpaid entries
func (a *Account) Consistent() bool {
	var sum int64
	for _, e := range a.Entries {
		sum += e.Outstanding()
	}
	return sum == a.TotalOutstanding && a.TotalOutstanding >= 0
}
