package points

import (
	"context"
	"time"
)

// JournalEntry is one signed line of the points journal read model
type JournalEntry struct {
	EventID              string    `json:"event_id" bson:"event_id"`
	TransferID           string    `json:"transfer_id" bson:"transfer_id"`
	OfficeID             string    `json:"office_id" bson:"office_id"`
	CounterpartyOfficeID string    `json:"counterparty_office_id" bson:"counterparty_office_id"`
	Delta                int64     `json:"delta" bson:"delta"`
	Reason               string    `json:"reason" bson:"reason"`
	SharedCallID         string    `json:"shared_call_id,omitempty" bson:"shared_call_id,omitempty"`
	CreatedAt            time.Time `json:"created_at" bson:"created_at"`
}

// JournalRepository manages the points journal with pagination support
type JournalRepository interface {
	Append(ctx context.Context, entry *JournalEntry) error
	GetByOfficeID(ctx context.Context, officeID string, limit, offset int) ([]*JournalEntry, error)
	CountByOfficeID(ctx context.Context, officeID string) (int64, error)
}

// ErrDuplicateJournalEntry indicates the event was already journaled for this office
type ErrDuplicateJournalEntry struct {
	EventID  string
	OfficeID string
}

func (e ErrDuplicateJournalEntry) Error() string {
	return "duplicate journal entry: " + e.EventID + "/" + e.OfficeID
}

// Is implements the errors.Is interface for ErrDuplicateJournalEntry
func (e ErrDuplicateJournalEntry) Is(target error) bool {
	t, ok := target.(ErrDuplicateJournalEntry)
	if !ok {
		return false
	}
	// An empty target matches any duplicate
	if t.EventID == "" {
		return true
	}
	return e.EventID == t.EventID && e.OfficeID == t.OfficeID
}
