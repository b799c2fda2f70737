package sharedcall

import (
	"context"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines persistence for the global shared_calls collection
type Repository interface {
	Create(ctx context.Context, sc *SharedCall) error
	GetByID(ctx context.Context, id uuid.UUID) (*SharedCall, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*SharedCall, error)

	// MarkClaimed only succeeds while the stored row is OPEN and unprocessed
	MarkClaimed(ctx context.Context, sc *SharedCall) error

	// MarkCompleted only succeeds while the stored row is CLAIMED
	MarkCompleted(ctx context.Context, sc *SharedCall) error
	ListOpen(ctx context.Context, targetRegionID string, limit int) ([]*SharedCall, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrAlreadyClaimed is the benign outcome of losing a claim race
type ErrAlreadyClaimed struct {
	SharedCallID uuid.UUID
}

func (e ErrAlreadyClaimed) Error() string {
	return "shared call already claimed: " + e.SharedCallID.String()
}

func (e ErrAlreadyClaimed) Is(target error) bool {
	return target == shared.ErrAlreadyClaimed
}

// ErrSharedCallNotFound indicates missing shared call
type ErrSharedCallNotFound struct {
	SharedCallID uuid.UUID
}

func (e ErrSharedCallNotFound) Error() string {
	return "shared call not found: " + e.SharedCallID.String()
}

func (e ErrSharedCallNotFound) Is(target error) bool {
	return target == shared.ErrNotFound
}
