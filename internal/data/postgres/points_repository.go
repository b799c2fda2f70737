package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

// PointsRepository implements points.Repository, one row per office
type PointsRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewPointsRepository(logger *slog.Logger, db *persistence.PostgresDB) points.Repository {
	return &PointsRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *PointsRepository) WithTx(tx pgx.Tx) points.Repository {
	return &PointsRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// ApplyDelta adds delta in a single statement, so concurrent transfers never lose an update
func (r *PointsRepository) ApplyDelta(ctx context.Context, officeID string, delta int64, at time.Time) (*points.Balance, error) {
	query := `
		INSERT INTO points_balances (office_id, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (office_id) DO UPDATE
		SET balance = points_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		RETURNING office_id, balance, updated_at
	`

	var b points.Balance
	err := r.querier.QueryRow(ctx, query, officeID, delta, at).Scan(&b.OfficeID, &b.Balance, &b.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to apply points delta", "office_id", officeID, "delta", delta, "error", err)
		return nil, fmt.Errorf("failed to apply points delta: %w", err)
	}

	return &b, nil
}

func (r *PointsRepository) GetByOfficeID(ctx context.Context, officeID string) (*points.Balance, error) {
	query := `
		SELECT office_id, balance, updated_at
		FROM points_balances
		WHERE office_id = $1
	`

	var b points.Balance
	err := r.querier.QueryRow(ctx, query, officeID).Scan(&b.OfficeID, &b.Balance, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &points.Balance{OfficeID: officeID}, nil
		}
		r.logger.Error("Failed to get points balance", "office_id", officeID, "error", err)
		return nil, fmt.Errorf("failed to get points balance: %w", err)
	}

	return &b, nil
}

func (r *PointsRepository) Sum(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(SUM(balance), 0)::BIGINT FROM points_balances`

	var sum int64
	if err := r.querier.QueryRow(ctx, query).Scan(&sum); err != nil {
		r.logger.Error("Failed to sum points balances", "error", err)
		return 0, fmt.Errorf("failed to sum points balances: %w", err)
	}

	return sum, nil
}
