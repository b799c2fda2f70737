package points

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository defines point balance persistence
type Repository interface {
	// ApplyDelta adds delta to the office balance, creating the row at zero if absent
	ApplyDelta(ctx context.Context, officeID string, delta int64, at time.Time) (*Balance, error)

	// GetByOfficeID returns a zero balance for offices that never transferred points
	GetByOfficeID(ctx context.Context, officeID string) (*Balance, error)

	// Sum returns the total over every office; zero while the closed-sum invariant holds
	Sum(ctx context.Context) (int64, error)
	WithTx(tx pgx.Tx) Repository
}
