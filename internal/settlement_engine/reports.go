package settlement_engine

import (
	"context"
	"time"

	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// SessionReport aggregates the records of one session and checks them against its totals
func (e *Engine) SessionReport(ctx context.Context, scope shared.Scope, sessionID uuid.UUID) (*settlement.Report, error) {
	session, err := e.sessions.GetByID(ctx, scope.OfficeID, sessionID)
	if err != nil {
		return nil, err
	}
	records, err := e.records.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	report := settlement.BuildSessionReport(session, records)
	if session.Status == settlement.SessionClosed && !report.Reconciled {
		e.logger.Error("Closed session does not reconcile", "session_id", session.ID.String())
	}
	return &report, nil
}

// DateRangeReport aggregates records with work dates in [from, to], both YYYY-MM-DD
func (e *Engine) DateRangeReport(ctx context.Context, scope shared.Scope, from, to string) (*settlement.Report, error) {
	fromDate, err := time.Parse(settlement.WorkDateLayout, from)
	if err != nil {
		return nil, shared.ValidationError{Field: "from", Message: "must be YYYY-MM-DD"}
	}
	toDate, err := time.Parse(settlement.WorkDateLayout, to)
	if err != nil {
		return nil, shared.ValidationError{Field: "to", Message: "must be YYYY-MM-DD"}
	}
	if toDate.Before(fromDate) {
		return nil, shared.ValidationError{Field: "to", Message: "must not be before from"}
	}

	records, err := e.records.ListByWorkDate(ctx, scope.OfficeID, from, to)
	if err != nil {
		return nil, err
	}

	report := settlement.BuildReport(records)
	report.Reconciled = true
	return &report, nil
}
