package credit

import (
	"context"
	"time"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines credit account persistence
type Repository interface {
	// UpsertIncrement atomically creates the account for (OfficeID, LookupKey)
	// or adds amount to the existing one, returning the stored account without entries.
	UpsertIncrement(ctx context.Context, account *Account, amount int64, at time.Time) (*Account, error)
	AddEntry(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByLookupKey(ctx context.Context, officeID, key string) (*Account, error)

	// UpdatePayment persists the new outstanding total and the paid amounts of touched entries
	UpdatePayment(ctx context.Context, account *Account, touched []*Entry) error
	WithTx(tx pgx.Tx) Repository
}

// ErrAccountNotFound indicates missing credit account
type ErrAccountNotFound struct {
	Key string
}

func (e ErrAccountNotFound) Error() string {
	return "credit account not found: " + e.Key
}

func (e ErrAccountNotFound) Is(target error) bool {
	return target == shared.ErrNotFound
}
