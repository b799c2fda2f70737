package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionColumnNames = []string{"id", "region_id", "office_id", "status", "opened_at", "closed_at", "total_trips", "total_fare"}

var recordColumnNames = []string{
	"id", "kind", "call_id", "region_id", "office_id", "driver_id", "driver_name", "customer_name",
	"departure", "destination", "fare", "payment_method", "cash_amount", "card_amount", "credit_amount",
	"completed_at", "work_date", "is_finalized", "session_id", "reason", "created_at",
}

func sampleSession() *settlement.Session {
	s := settlement.NewSession(testScope(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	s.ClosedAt = (*time.Time)(nil)
	return s
}

func sessionRow(s *settlement.Session) []any {
	return []any{s.ID, s.RegionID, s.OfficeID, s.Status, s.OpenedAt, s.ClosedAt, s.TotalTrips, s.TotalFare}
}

func sampleRecord(sessionID uuid.UUID) *settlement.Record {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &settlement.Record{
		ID:            uuid.New(),
		Kind:          settlement.KindTrip,
		CallID:        uuid.NewString(),
		RegionID:      "seoul",
		OfficeID:      "gangnam",
		DriverID:      "driver-7",
		DriverName:    "Park",
		Departure:     "A",
		Destination:   "B",
		Fare:          30000,
		PaymentMethod: call.PaymentCash,
		CashAmount:    30000,
		CompletedAt:   at,
		WorkDate:      "2026-03-01",
		SessionID:     &sessionID,
		CreatedAt:     at,
	}
}

func recordRow(rec *settlement.Record) []any {
	return []any{
		rec.ID, rec.Kind, rec.CallID, rec.RegionID, rec.OfficeID, rec.DriverID, rec.DriverName, rec.CustomerName,
		rec.Departure, rec.Destination, rec.Fare, rec.PaymentMethod, rec.CashAmount, rec.CardAmount, rec.CreditAmount,
		rec.CompletedAt, rec.WorkDate, rec.IsFinalized, rec.SessionID, rec.Reason, rec.CreatedAt,
	}
}

func TestSessionRepository_GetOpenForUpdate(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SessionRepository{querier: mock, logger: newTestLogger()}
	s := sampleSession()
	query := `SELECT (.+) FROM settlement_sessions WHERE office_id = \$1 AND status = 'OPEN' FOR UPDATE`

	mock.ExpectQuery(query).WithArgs("gangnam").
		WillReturnRows(pgxmock.NewRows(sessionColumnNames).AddRow(sessionRow(s)...))
	got, err := repo.GetOpenForUpdate(ctx, "gangnam")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	mock.ExpectQuery(query).WithArgs("gangnam").WillReturnError(pgx.ErrNoRows)
	got, err = repo.GetOpenForUpdate(ctx, "gangnam")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Create(t *testing.T) {
	ctx := context.Background()
	s := sampleSession()

	tests := []struct {
		name    string
		dbErr   error
		wantErr error
	}{
		{name: "success"},
		{
			name:    "concurrent open session is retryable",
			dbErr:   &pgconn.PgError{Code: "23505", ConstraintName: "idx_settlement_sessions_one_open"},
			wantErr: shared.ErrTransactionAborted,
		},
		{
			name:  "other db error",
			dbErr: errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			exp := mock.ExpectExec(`INSERT INTO settlement_sessions`).WithArgs(sessionRow(s)...)
			if tt.dbErr != nil {
				exp.WillReturnError(tt.dbErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			repo := &SessionRepository{querier: mock, logger: newTestLogger()}
			err = repo.Create(ctx, s)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.dbErr != nil:
				assert.ErrorContains(t, err, "failed to create session")
				assert.NotErrorIs(t, err, shared.ErrTransactionAborted)
			default:
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionRepository_UpdateAndGetByID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SessionRepository{querier: mock, logger: newTestLogger()}
	s := sampleSession()
	s.TotalTrips = 2
	s.TotalFare = 60000
	require.NoError(t, s.Close(time.Now()))

	mock.ExpectExec(`UPDATE settlement_sessions SET status = \$1, closed_at = \$2, total_trips = \$3, total_fare = \$4 WHERE id = \$5`).
		WithArgs(s.Status, s.ClosedAt, s.TotalTrips, s.TotalFare, s.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.Update(ctx, s))

	mock.ExpectQuery(`SELECT (.+) FROM settlement_sessions WHERE id = \$1 AND office_id = \$2`).
		WithArgs(s.ID, "gangnam").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByID(ctx, "gangnam", s.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_Insert(t *testing.T) {
	ctx := context.Background()
	rec := sampleRecord(uuid.New())

	tests := []struct {
		name         string
		rowsAffected int64
		wantInserted bool
	}{
		{name: "new trip", rowsAffected: 1, wantInserted: true},
		{name: "trip already recorded", rowsAffected: 0, wantInserted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(`INSERT INTO settlement_records (.+) ON CONFLICT \(call_id\) WHERE kind = 'TRIP' DO NOTHING`).
				WithArgs(recordRow(rec)...).
				WillReturnResult(pgxmock.NewResult("INSERT", tt.rowsAffected))

			repo := &RecordRepository{querier: mock, logger: newTestLogger()}
			inserted, err := repo.Insert(ctx, rec)

			require.NoError(t, err)
			assert.Equal(t, tt.wantInserted, inserted)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRecordRepository_Queries(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &RecordRepository{querier: mock, logger: newTestLogger()}
	sessionID := uuid.New()
	a, b := sampleRecord(sessionID), sampleRecord(sessionID)

	mock.ExpectQuery(`FROM settlement_records WHERE session_id = \$1`).
		WithArgs(sessionID).
		WillReturnRows(pgxmock.NewRows(recordColumnNames).AddRow(recordRow(a)...).AddRow(recordRow(b)...))
	records, err := repo.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, []*settlement.Record{a, b}, records)

	mock.ExpectQuery(`WHERE office_id = \$1 AND work_date >= \$2 AND work_date <= \$3`).
		WithArgs("gangnam", "2026-03-01", "2026-03-31").
		WillReturnRows(pgxmock.NewRows(recordColumnNames).AddRow(recordRow(a)...))
	records, err = repo.ListByWorkDate(ctx, "gangnam", "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	mock.ExpectQuery(`WHERE call_id = \$1 AND office_id = \$2 AND kind = 'TRIP'`).
		WithArgs("missing", "gangnam").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetTripByCallID(ctx, "gangnam", "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	mock.ExpectExec(`UPDATE settlement_records SET is_finalized = TRUE WHERE session_id = \$1 AND is_finalized = FALSE`).
		WithArgs(sessionID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	n, err := repo.FinalizeSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mock.ExpectQuery(`FROM settlement_records WHERE session_id = \$1`).
		WithArgs(sessionID).
		WillReturnError(errors.New("boom"))
	_, err = repo.ListBySession(ctx, sessionID)
	assert.ErrorContains(t, err, "failed to list settlement records by session")

	assert.NoError(t, mock.ExpectationsWereMet())
}
