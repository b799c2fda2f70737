package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const callColumns = `id, region_id, office_id, status, customer_name, phone_number, departure, destination, fare,
		assigned_worker_id, assigned_worker_name, payment_method, cash_amount, card_amount, credit_amount,
		status_reason, source_shared_call_id, version, created_at, updated_at, completed_at`

// CallRepository implements the call.Repository interface for PostgreSQL.
// Every query filters by region and office, mirroring the region/office/calls hierarchy.
type CallRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewCallRepository creates a new PostgreSQL call repository
func NewCallRepository(logger *slog.Logger, db *persistence.PostgresDB) call.Repository {
	return &CallRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *CallRepository) WithTx(tx pgx.Tx) call.Repository {
	return &CallRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new call
func (r *CallRepository) Create(ctx context.Context, c *call.Call) error {
	query := `
		INSERT INTO calls (` + callColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := r.querier.Exec(ctx, query,
		c.ID,
		c.RegionID,
		c.OfficeID,
		c.Status,
		c.CustomerName,
		c.PhoneNumber,
		c.Departure,
		c.Destination,
		c.Fare,
		c.AssignedWorkerID,
		c.AssignedWorkerName,
		c.PaymentMethod,
		c.CashAmount,
		c.CardAmount,
		c.CreditAmount,
		c.StatusReason,
		c.SourceSharedCallID,
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
		c.CompletedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create call", "path", c.Path(), "error", err)
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// GetByID retrieves a call owned by the given office
func (r *CallRepository) GetByID(ctx context.Context, scope shared.Scope, id uuid.UUID) (*call.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE id = $1 AND region_id = $2 AND office_id = $3
	`

	c, err := scanCall(r.querier.QueryRow(ctx, query, id, scope.RegionID, scope.OfficeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, call.ErrCallNotFound{CallID: id}
		}
		r.logger.Error("Failed to get call", "path", scope.CallPath(id.String()), "error", err)
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return c, nil
}

// LockForUpdate reads the call and locks its row until the surrounding transaction ends
func (r *CallRepository) LockForUpdate(ctx context.Context, scope shared.Scope, id uuid.UUID) (*call.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE id = $1 AND region_id = $2 AND office_id = $3
		FOR UPDATE
	`

	c, err := scanCall(r.querier.QueryRow(ctx, query, id, scope.RegionID, scope.OfficeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, call.ErrCallNotFound{CallID: id}
		}
		r.logger.Error("Failed to lock call for update", "path", scope.CallPath(id.String()), "error", err)
		return nil, fmt.Errorf("failed to lock call for update: %w", err)
	}

	return c, nil
}

// Update persists a transition. The stored version must be c.Version-1,
// otherwise ErrConcurrentModification is returned.
func (r *CallRepository) Update(ctx context.Context, c *call.Call) error {
	query := `
		UPDATE calls
		SET status = $1, fare = $2, assigned_worker_id = $3, assigned_worker_name = $4, payment_method = $5,
			cash_amount = $6, card_amount = $7, credit_amount = $8, status_reason = $9, version = $10,
			updated_at = $11, completed_at = $12
		WHERE id = $13 AND region_id = $14 AND office_id = $15 AND version = $16
	`

	result, err := r.querier.Exec(ctx, query,
		c.Status,
		c.Fare,
		c.AssignedWorkerID,
		c.AssignedWorkerName,
		c.PaymentMethod,
		c.CashAmount,
		c.CardAmount,
		c.CreditAmount,
		c.StatusReason,
		c.Version,
		c.UpdatedAt,
		c.CompletedAt,
		c.ID,
		c.RegionID,
		c.OfficeID,
		c.Version-1,
	)
	if err != nil {
		r.logger.Error("Failed to update call", "path", c.Path(), "error", err)
		return fmt.Errorf("failed to update call: %w", err)
	}

	if result.RowsAffected() == 0 {
		return call.ErrConcurrentModification{CallID: c.ID}
	}

	return nil
}

// List returns the calls of one office, newest first
func (r *CallRepository) List(ctx context.Context, scope shared.Scope, filter call.ListFilter) ([]*call.Call, error) {
	limit := clampLimit(filter.Limit)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		rows pgx.Rows
		err  error
	)
	if len(filter.Statuses) == 0 {
		query := `
			SELECT ` + callColumns + `
			FROM calls
			WHERE region_id = $1 AND office_id = $2
			ORDER BY created_at DESC
			LIMIT $3 OFFSET $4
		`
		rows, err = r.querier.Query(ctx, query, scope.RegionID, scope.OfficeID, limit, offset)
	} else {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query := `
			SELECT ` + callColumns + `
			FROM calls
			WHERE region_id = $1 AND office_id = $2 AND status = ANY($3)
			ORDER BY created_at DESC
			LIMIT $4 OFFSET $5
		`
		rows, err = r.querier.Query(ctx, query, scope.RegionID, scope.OfficeID, statuses, limit, offset)
	}
	if err != nil {
		r.logger.Error("Failed to list calls", "region_id", scope.RegionID, "office_id", scope.OfficeID, "error", err)
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	calls := make([]*call.Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			r.logger.Error("Failed to scan call", "error", err)
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, c)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over calls", "error", err)
		return nil, fmt.Errorf("error iterating over calls: %w", err)
	}

	return calls, nil
}

func scanCall(row rowScanner) (*call.Call, error) {
	var c call.Call
	err := row.Scan(
		&c.ID,
		&c.RegionID,
		&c.OfficeID,
		&c.Status,
		&c.CustomerName,
		&c.PhoneNumber,
		&c.Departure,
		&c.Destination,
		&c.Fare,
		&c.AssignedWorkerID,
		&c.AssignedWorkerName,
		&c.PaymentMethod,
		&c.CashAmount,
		&c.CardAmount,
		&c.CreditAmount,
		&c.StatusReason,
		&c.SourceSharedCallID,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
