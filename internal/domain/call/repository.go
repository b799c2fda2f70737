package call

import (
	"context"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListFilter narrows call listings. Empty Statuses means all statuses.
type ListFilter struct {
	Statuses []Status
	Limit    int
	Offset   int
}

// Repository defines call persistence operations scoped to one office
type Repository interface {
	Create(ctx context.Context, call *Call) error
	GetByID(ctx context.Context, scope shared.Scope, id uuid.UUID) (*Call, error)

	// LockForUpdate reads the call and holds its row until the transaction ends
	LockForUpdate(ctx context.Context, scope shared.Scope, id uuid.UUID) (*Call, error)

	// Update persists the call if the stored version is call.Version-1
	Update(ctx context.Context, call *Call) error
	List(ctx context.Context, scope shared.Scope, filter ListFilter) ([]*Call, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	CallID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for call: " + e.CallID.String()
}

func (e ErrConcurrentModification) Is(target error) bool {
	return target == shared.ErrStaleState
}

// ErrCallNotFound indicates missing call
type ErrCallNotFound struct {
	CallID uuid.UUID
}

func (e ErrCallNotFound) Error() string {
	return "call not found: " + e.CallID.String()
}

func (e ErrCallNotFound) Is(target error) bool {
	return target == shared.ErrNotFound
}
