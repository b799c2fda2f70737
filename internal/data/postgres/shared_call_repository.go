package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/domain/sharedcall"
	"github.com/dispatch-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sharedCallColumns = `id, status, customer_name, phone_number, departure, destination, fare,
		source_region_id, source_office_id, target_region_id, claimed_region_id, claimed_office_id, created_by,
		created_at, claimed_at, completed_at, dest_call_id, processed`

// SharedCallRepository implements sharedcall.Repository on the global shared_calls table
type SharedCallRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewSharedCallRepository(logger *slog.Logger, db *persistence.PostgresDB) sharedcall.Repository {
	return &SharedCallRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *SharedCallRepository) WithTx(tx pgx.Tx) sharedcall.Repository {
	return &SharedCallRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func (r *SharedCallRepository) Create(ctx context.Context, sc *sharedcall.SharedCall) error {
	query := `
		INSERT INTO shared_calls (` + sharedCallColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.querier.Exec(ctx, query,
		sc.ID,
		sc.Status,
		sc.CustomerName,
		sc.PhoneNumber,
		sc.Departure,
		sc.Destination,
		sc.Fare,
		sc.SourceRegionID,
		sc.SourceOfficeID,
		sc.TargetRegionID,
		sc.ClaimedRegionID,
		sc.ClaimedOfficeID,
		sc.CreatedBy,
		sc.CreatedAt,
		sc.ClaimedAt,
		sc.CompletedAt,
		sc.DestCallID,
		sc.Processed,
	)
	if err != nil {
		r.logger.Error("Failed to create shared call", "path", sc.Path(), "error", err)
		return fmt.Errorf("failed to create shared call: %w", err)
	}

	return nil
}

func (r *SharedCallRepository) GetByID(ctx context.Context, id uuid.UUID) (*sharedcall.SharedCall, error) {
	query := `
		SELECT ` + sharedCallColumns + `
		FROM shared_calls
		WHERE id = $1
	`
	return r.getOne(ctx, query, id, "get")
}

// LockForUpdate reads the shared call and holds its row lock. Concurrent
// claimers queue here, so only the first sees it OPEN.
func (r *SharedCallRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*sharedcall.SharedCall, error) {
	query := `
		SELECT ` + sharedCallColumns + `
		FROM shared_calls
		WHERE id = $1
		FOR UPDATE
	`
	return r.getOne(ctx, query, id, "lock")
}

func (r *SharedCallRepository) getOne(ctx context.Context, query string, id uuid.UUID, verb string) (*sharedcall.SharedCall, error) {
	sc, err := scanSharedCall(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sharedcall.ErrSharedCallNotFound{SharedCallID: id}
		}
		r.logger.Error("Failed to "+verb+" shared call", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to %s shared call: %w", verb, err)
	}
	return sc, nil
}

// MarkClaimed records the claim only while the stored row is still OPEN and unprocessed
func (r *SharedCallRepository) MarkClaimed(ctx context.Context, sc *sharedcall.SharedCall) error {
	query := `
		UPDATE shared_calls
		SET status = $1, claimed_region_id = $2, claimed_office_id = $3, claimed_at = $4, dest_call_id = $5, processed = TRUE
		WHERE id = $6 AND status = 'OPEN' AND processed = FALSE
	`

	result, err := r.querier.Exec(ctx, query, sc.Status, sc.ClaimedRegionID, sc.ClaimedOfficeID, sc.ClaimedAt, sc.DestCallID, sc.ID)
	if err != nil {
		r.logger.Error("Failed to mark shared call claimed", "id", sc.ID.String(), "error", err)
		return fmt.Errorf("failed to mark shared call claimed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return sharedcall.ErrAlreadyClaimed{SharedCallID: sc.ID}
	}

	return nil
}

// MarkCompleted applies the completion only while the stored row is CLAIMED
func (r *SharedCallRepository) MarkCompleted(ctx context.Context, sc *sharedcall.SharedCall) error {
	query := `
		UPDATE shared_calls
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = 'CLAIMED'
	`

	result, err := r.querier.Exec(ctx, query, sc.Status, sc.CompletedAt, sc.ID)
	if err != nil {
		r.logger.Error("Failed to mark shared call completed", "id", sc.ID.String(), "error", err)
		return fmt.Errorf("failed to mark shared call completed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.StaleStateError{ID: sc.ID.String(), Expected: string(sharedcall.StatusClaimed), Actual: "changed"}
	}

	return nil
}

// ListOpen returns OPEN shared calls oldest first. An empty targetRegionID lists every region.
func (r *SharedCallRepository) ListOpen(ctx context.Context, targetRegionID string, limit int) ([]*sharedcall.SharedCall, error) {
	query := `
		SELECT ` + sharedCallColumns + `
		FROM shared_calls
		WHERE status = 'OPEN' AND ($1 = '' OR target_region_id = '' OR target_region_id = $1)
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, targetRegionID, clampLimit(limit))
	if err != nil {
		r.logger.Error("Failed to list open shared calls", "target_region_id", targetRegionID, "error", err)
		return nil, fmt.Errorf("failed to list open shared calls: %w", err)
	}
	defer rows.Close()

	calls := make([]*sharedcall.SharedCall, 0)
	for rows.Next() {
		sc, err := scanSharedCall(rows)
		if err != nil {
			r.logger.Error("Failed to scan shared call", "error", err)
			return nil, fmt.Errorf("failed to scan shared call: %w", err)
		}
		calls = append(calls, sc)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over shared calls", "error", err)
		return nil, fmt.Errorf("error iterating over shared calls: %w", err)
	}

	return calls, nil
}

func scanSharedCall(row rowScanner) (*sharedcall.SharedCall, error) {
	var sc sharedcall.SharedCall
	err := row.Scan(
		&sc.ID,
		&sc.Status,
		&sc.CustomerName,
		&sc.PhoneNumber,
		&sc.Departure,
		&sc.Destination,
		&sc.Fare,
		&sc.SourceRegionID,
		&sc.SourceOfficeID,
		&sc.TargetRegionID,
		&sc.ClaimedRegionID,
		&sc.ClaimedOfficeID,
		&sc.CreatedBy,
		&sc.CreatedAt,
		&sc.ClaimedAt,
		&sc.CompletedAt,
		&sc.DestCallID,
		&sc.Processed,
	)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}
