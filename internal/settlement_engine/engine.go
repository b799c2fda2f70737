// Package settlement_engine implements the Settlement operation group: trip
// records grouped into business-day sessions, customer credit, the points
// ledger and read-side reports.
package settlement_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dispatch-ledger/internal/config"
	"github.com/dispatch-ledger/internal/data"
	"github.com/dispatch-ledger/internal/domain/credit"
	"github.com/dispatch-ledger/internal/domain/outbox"
	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/platform/lock"
	"github.com/dispatch-ledger/internal/platform/persistence"
	"github.com/dispatch-ledger/internal/platform/retry"
	"github.com/jackc/pgx/v5"
)

// ErrUnreconciled aborts a session close whose attached records disagree with its totals
var ErrUnreconciled = errors.New("session totals do not match attached records")

type Engine struct {
	tx          persistence.TxRunner
	sessions    settlement.SessionRepository
	records     settlement.RecordRepository
	credits     credit.Repository
	points      points.Repository
	journal     points.JournalRepository
	outbox      outbox.Repository
	locker      lock.Locker
	policy      retry.Policy
	loc         *time.Location
	phoneRegion string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEngine wires the engine to a store. locker may be nil.
func NewEngine(logger *slog.Logger, stores data.Stores, locker lock.Locker, cfg config.DispatchConfig) *Engine {
	return &Engine{
		tx:          stores.Tx,
		sessions:    stores.Sessions,
		records:     stores.Records,
		credits:     stores.Credits,
		points:      stores.Points,
		outbox:      stores.Outbox,
		locker:      locker,
		policy:      retry.NewPolicy(cfg),
		loc:         cfg.Location(),
		phoneRegion: cfg.PhoneDefaultRegion,
		now:         time.Now,
		logger:      logger,
	}
}

// WithJournal enables the points journal queries
func (e *Engine) WithJournal(journal points.JournalRepository) *Engine {
	e.journal = journal
	return e
}

// TripResult is the outcome of recording a trip. Duplicate is set when the
// call was already recorded; Record is then the stored one.
type TripResult struct {
	Record    *settlement.Record  `json:"record"`
	Session   *settlement.Session `json:"session,omitempty"`
	Duplicate bool                `json:"duplicate"`
}

// RecordCompletedTrip records a trip in its own transaction
func (e *Engine) RecordCompletedTrip(ctx context.Context, trip settlement.Trip) (*TripResult, error) {
	var result *TripResult
	err := retry.Do(ctx, e.policy, e.logger, "settlement.record_trip", func(ctx context.Context) error {
		return e.tx.ExecuteTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			var err error
			result, err = e.RecordTripTx(ctx, tx, trip)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordTripTx records a trip inside the caller's transaction. The call id is
// the idempotency key: a second recording returns the stored record.
func (e *Engine) RecordTripTx(ctx context.Context, tx pgx.Tx, trip settlement.Trip) (*TripResult, error) {
	logger := e.logger.With("call_id", trip.CallID, "office_id", trip.Scope.OfficeID)
	records := e.records.WithTx(tx)
	sessions := e.sessions.WithTx(tx)

	at := e.now()
	record, err := settlement.NewTripRecord(trip, e.loc, at)
	if err != nil {
		return nil, err
	}

	existing, err := records.GetTripByCallID(ctx, trip.Scope.OfficeID, trip.CallID)
	switch {
	case err == nil:
		logger.Info("Trip already recorded", "record_id", existing.ID.String())
		return &TripResult{Record: existing, Duplicate: true}, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	session, err := e.openSessionTx(ctx, sessions, trip.Scope, at)
	if err != nil {
		return nil, err
	}
	if err := session.Attach(record); err != nil {
		return nil, err
	}

	inserted, err := records.Insert(ctx, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// a concurrent writer of this office committed first, otherwise the
		// call id is already settled under another office
		stored, err := records.GetTripByCallID(ctx, trip.Scope.OfficeID, trip.CallID)
		if errors.Is(err, shared.ErrNotFound) {
			logger.Warn("Trip already recorded under another office")
			return nil, shared.ValidationError{Field: "call_id", Message: "trip " + trip.CallID + " is already recorded by another office"}
		}
		if err != nil {
			return nil, err
		}
		return &TripResult{Record: stored, Duplicate: true}, nil
	}

	if err := sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	if record.CreditAmount > 0 {
		customer := credit.Customer{Phone: trip.CustomerPhone, Name: trip.CustomerName}
		detail := credit.Detail{
			CallID:      record.CallID,
			Date:        record.WorkDate,
			Departure:   record.Departure,
			Destination: record.Destination,
		}
		if _, err := e.postCreditTx(ctx, tx, record.OfficeID, customer, record.CreditAmount, detail); err != nil {
			return nil, fmt.Errorf("failed to post credit for call %s: %w", record.CallID, err)
		}
	}

	if err := outbox.EnqueueEvent(ctx, e.outbox.WithTx(tx), shared.EventTripRecorded, record.CallID, trip.Scope, record); err != nil {
		return nil, err
	}

	logger.Info("Trip recorded", "session_id", session.ID.String(), "fare", record.Fare, "total_trips", session.TotalTrips)
	return &TripResult{Record: record, Session: session}, nil
}

func (e *Engine) openSessionTx(ctx context.Context, sessions settlement.SessionRepository, scope shared.Scope, at time.Time) (*settlement.Session, error) {
	session, err := sessions.GetOpenForUpdate(ctx, scope.OfficeID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = settlement.NewSession(scope, at)
	if err := sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	e.logger.Info("Opened settlement session", "office_id", scope.OfficeID, "session_id", session.ID.String())
	return session, nil
}

// CloseResult reports a closed session and the session opened after it
type CloseResult struct {
	Closed    *settlement.Session `json:"closed"`
	Next      *settlement.Session `json:"next"`
	Finalized int64               `json:"finalized"`
}

// CloseSession ends the business day of an office. Closing without an open
// session, or with an empty one, is an invalid transition and finalizes nothing.
func (e *Engine) CloseSession(ctx context.Context, scope shared.Scope) (*CloseResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	var result *CloseResult
	err := retry.Do(ctx, e.policy, e.logger, "settlement.close_session", func(ctx context.Context) error {
		return e.tx.ExecuteTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			sessions := e.sessions.WithTx(tx)
			records := e.records.WithTx(tx)
			at := e.now()

			session, err := sessions.GetOpenForUpdate(ctx, scope.OfficeID)
			if err != nil {
				return err
			}
			if session == nil {
				return shared.InvalidTransitionError{
					Entity: "session",
					ID:     scope.OfficeID,
					From:   "NONE",
					To:     string(settlement.SessionClosed),
				}
			}

			attached, err := records.ListBySession(ctx, session.ID)
			if err != nil {
				return err
			}
			totals := settlement.BuildReport(attached).Totals
			if !session.Reconciles(totals.Trips, totals.Fare) {
				e.logger.Error("Session does not reconcile",
					"session_id", session.ID.String(),
					"total_trips", session.TotalTrips,
					"record_trips", totals.Trips,
					"total_fare", session.TotalFare,
					"record_fare", totals.Fare,
				)
				return fmt.Errorf("failed to close session %s: %w", session.ID, ErrUnreconciled)
			}

			if err := session.Close(at); err != nil {
				return err
			}
			if err := sessions.Update(ctx, session); err != nil {
				return err
			}
			finalized, err := records.FinalizeSession(ctx, session.ID)
			if err != nil {
				return err
			}

			next := settlement.NewSession(scope, at)
			if err := sessions.Create(ctx, next); err != nil {
				return err
			}

			if err := outbox.EnqueueEvent(ctx, e.outbox.WithTx(tx), shared.EventSessionClosed, session.ID.String(), scope, session); err != nil {
				return err
			}

			result = &CloseResult{Closed: session, Next: next, Finalized: finalized}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Settlement session closed",
		"office_id", scope.OfficeID,
		"session_id", result.Closed.ID.String(),
		"total_trips", result.Closed.TotalTrips,
		"total_fare", result.Closed.TotalFare,
		"finalized", result.Finalized,
	)
	return result, nil
}

// AdjustmentRequest corrects the fare of a recorded trip with a compensating record
type AdjustmentRequest struct {
	Scope     shared.Scope
	CallID    string
	FareDelta int64
	Reason    string
}

// RecordAdjustment attaches a compensating record to the current open session.
// The original record is left untouched, finalized or not.
func (e *Engine) RecordAdjustment(ctx context.Context, req AdjustmentRequest) (*settlement.Record, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}

	var adjustment *settlement.Record
	err := retry.Do(ctx, e.policy, e.logger, "settlement.record_adjustment", func(ctx context.Context) error {
		return e.tx.ExecuteTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			records := e.records.WithTx(tx)
			sessions := e.sessions.WithTx(tx)
			at := e.now()

			original, err := records.GetTripByCallID(ctx, req.Scope.OfficeID, req.CallID)
			if err != nil {
				return err
			}
			adj, err := settlement.NewAdjustment(original, req.FareDelta, req.Reason, e.loc, at)
			if err != nil {
				return err
			}

			session, err := e.openSessionTx(ctx, sessions, req.Scope, at)
			if err != nil {
				return err
			}
			if err := session.Attach(adj); err != nil {
				return err
			}
			if _, err := records.Insert(ctx, adj); err != nil {
				return err
			}
			if err := sessions.Update(ctx, session); err != nil {
				return err
			}

			adjustment = adj
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Adjustment recorded", "call_id", req.CallID, "fare_delta", req.FareDelta, "record_id", adjustment.ID.String())
	return adjustment, nil
}

// CurrentSession returns the open session of an office
func (e *Engine) CurrentSession(ctx context.Context, scope shared.Scope) (*settlement.Session, error) {
	session, err := e.sessions.GetOpen(ctx, scope.OfficeID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, shared.NotFoundError{Entity: "open session", ID: scope.OfficeID}
	}
	return session, nil
}
