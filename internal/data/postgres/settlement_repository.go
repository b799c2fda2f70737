package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, region_id, office_id, status, opened_at, closed_at, total_trips, total_fare`

const recordColumns = `id, kind, call_id, region_id, office_id, driver_id, driver_name, customer_name,
		departure, destination, fare, payment_method, cash_amount, card_amount, credit_amount,
		completed_at, work_date, is_finalized, session_id, reason, created_at`

// SessionRepository implements settlement.SessionRepository
type SessionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewSessionRepository(logger *slog.Logger, db *persistence.PostgresDB) settlement.SessionRepository {
	return &SessionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *SessionRepository) WithTx(tx pgx.Tx) settlement.SessionRepository {
	return &SessionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// GetOpenForUpdate locks the OPEN session of the office; nil, nil when there is none
func (r *SessionRepository) GetOpenForUpdate(ctx context.Context, officeID string) (*settlement.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM settlement_sessions
		WHERE office_id = $1 AND status = 'OPEN'
		FOR UPDATE
	`
	return r.getOpen(ctx, query, officeID)
}

// GetOpen reads the OPEN session of the office; nil, nil when there is none
func (r *SessionRepository) GetOpen(ctx context.Context, officeID string) (*settlement.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM settlement_sessions
		WHERE office_id = $1 AND status = 'OPEN'
	`
	return r.getOpen(ctx, query, officeID)
}

func (r *SessionRepository) getOpen(ctx context.Context, query, officeID string) (*settlement.Session, error) {
	s, err := scanSession(r.querier.QueryRow(ctx, query, officeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get open session", "office_id", officeID, "error", err)
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, officeID string, id uuid.UUID) (*settlement.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM settlement_sessions
		WHERE id = $1 AND office_id = $2
	`

	s, err := scanSession(r.querier.QueryRow(ctx, query, id, officeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrSessionNotFound{SessionID: id}
		}
		r.logger.Error("Failed to get session", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Create opens a session. Losing the race for the single OPEN slot of an
// office surfaces as a retryable abort.
func (r *SessionRepository) Create(ctx context.Context, s *settlement.Session) error {
	query := `
		INSERT INTO settlement_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		s.ID,
		s.RegionID,
		s.OfficeID,
		s.Status,
		s.OpenedAt,
		s.ClosedAt,
		s.TotalTrips,
		s.TotalFare,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.AbortedError{Op: "open session", Err: err}
		}
		r.logger.Error("Failed to create session", "office_id", s.OfficeID, "error", err)
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

func (r *SessionRepository) Update(ctx context.Context, s *settlement.Session) error {
	query := `
		UPDATE settlement_sessions
		SET status = $1, closed_at = $2, total_trips = $3, total_fare = $4
		WHERE id = $5
	`

	result, err := r.querier.Exec(ctx, query, s.Status, s.ClosedAt, s.TotalTrips, s.TotalFare, s.ID)
	if err != nil {
		r.logger.Error("Failed to update session", "id", s.ID.String(), "error", err)
		return fmt.Errorf("failed to update session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return settlement.ErrSessionNotFound{SessionID: s.ID}
	}

	return nil
}

func scanSession(row rowScanner) (*settlement.Session, error) {
	var s settlement.Session
	err := row.Scan(
		&s.ID,
		&s.RegionID,
		&s.OfficeID,
		&s.Status,
		&s.OpenedAt,
		&s.ClosedAt,
		&s.TotalTrips,
		&s.TotalFare,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RecordRepository implements settlement.RecordRepository. Finalized rows are
// protected by a database trigger as well.
type RecordRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewRecordRepository(logger *slog.Logger, db *persistence.PostgresDB) settlement.RecordRepository {
	return &RecordRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *RecordRepository) WithTx(tx pgx.Tx) settlement.RecordRepository {
	return &RecordRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Insert writes the record unless a trip with the same call id already exists
func (r *RecordRepository) Insert(ctx context.Context, rec *settlement.Record) (bool, error) {
	query := `
		INSERT INTO settlement_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (call_id) WHERE kind = 'TRIP' DO NOTHING
	`

	result, err := r.querier.Exec(ctx, query,
		rec.ID,
		rec.Kind,
		rec.CallID,
		rec.RegionID,
		rec.OfficeID,
		rec.DriverID,
		rec.DriverName,
		rec.CustomerName,
		rec.Departure,
		rec.Destination,
		rec.Fare,
		rec.PaymentMethod,
		rec.CashAmount,
		rec.CardAmount,
		rec.CreditAmount,
		rec.CompletedAt,
		rec.WorkDate,
		rec.IsFinalized,
		rec.SessionID,
		rec.Reason,
		rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert settlement record", "call_id", rec.CallID, "kind", string(rec.Kind), "error", err)
		return false, fmt.Errorf("failed to insert settlement record: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *RecordRepository) GetTripByCallID(ctx context.Context, officeID, callID string) (*settlement.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM settlement_records
		WHERE call_id = $1 AND office_id = $2 AND kind = 'TRIP'
	`

	rec, err := scanRecord(r.querier.QueryRow(ctx, query, callID, officeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrRecordNotFound{CallID: callID}
		}
		r.logger.Error("Failed to get settlement record", "call_id", callID, "error", err)
		return nil, fmt.Errorf("failed to get settlement record: %w", err)
	}
	return rec, nil
}

func (r *RecordRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*settlement.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM settlement_records
		WHERE session_id = $1
		ORDER BY created_at ASC
	`
	return r.list(ctx, "session", query, sessionID)
}

// ListByWorkDate returns records whose work date lies in [fromDate, toDate]
func (r *RecordRepository) ListByWorkDate(ctx context.Context, officeID, fromDate, toDate string) ([]*settlement.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM settlement_records
		WHERE office_id = $1 AND work_date >= $2 AND work_date <= $3
		ORDER BY work_date ASC, created_at ASC
	`
	return r.list(ctx, "work date", query, officeID, fromDate, toDate)
}

func (r *RecordRepository) list(ctx context.Context, by, query string, args ...any) ([]*settlement.Record, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list settlement records", "by", by, "error", err)
		return nil, fmt.Errorf("failed to list settlement records by %s: %w", by, err)
	}
	defer rows.Close()

	records := make([]*settlement.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			r.logger.Error("Failed to scan settlement record", "error", err)
			return nil, fmt.Errorf("failed to scan settlement record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over settlement records", "error", err)
		return nil, fmt.Errorf("error iterating over settlement records: %w", err)
	}

	return records, nil
}

// FinalizeSession flips is_finalized for every record still open in the session
func (r *RecordRepository) FinalizeSession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	query := `
		UPDATE settlement_records
		SET is_finalized = TRUE
		WHERE session_id = $1 AND is_finalized = FALSE
	`

	result, err := r.querier.Exec(ctx, query, sessionID)
	if err != nil {
		r.logger.Error("Failed to finalize settlement records", "session_id", sessionID.String(), "error", err)
		return 0, fmt.Errorf("failed to finalize settlement records: %w", err)
	}

	return result.RowsAffected(), nil
}

func scanRecord(row rowScanner) (*settlement.Record, error) {
	var rec settlement.Record
	err := row.Scan(
		&rec.ID,
		&rec.Kind,
		&rec.CallID,
		&rec.RegionID,
		&rec.OfficeID,
		&rec.DriverID,
		&rec.DriverName,
		&rec.CustomerName,
		&rec.Departure,
		&rec.Destination,
		&rec.Fare,
		&rec.PaymentMethod,
		&rec.CashAmount,
		&rec.CardAmount,
		&rec.CreditAmount,
		&rec.CompletedAt,
		&rec.WorkDate,
		&rec.IsFinalized,
		&rec.SessionID,
		&rec.Reason,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
