// Package dispatch implements the Dispatch operation group: the call
// lifecycle of one office, from creation to settlement or cancellation.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/dispatch-ledger/internal/config"
	"github.com/dispatch-ledger/internal/data"
	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/outbox"
	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/platform/persistence"
	"github.com/dispatch-ledger/internal/platform/retry"
	"github.com/dispatch-ledger/internal/settlement_engine"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// TripRecorder records the settlement line of a completed call inside the
// transaction that completes it
type TripRecorder interface {
	RecordTripTx(ctx context.Context, tx pgx.Tx, trip settlement.Trip) (*settlement_engine.TripResult, error)
}

// CallRef addresses a call and carries the status the caller last observed.
// Every transition is rejected with StaleState when the stored status differs.
type CallRef struct {
	Scope    shared.Scope
	ID       uuid.UUID
	Expected call.Status
}

// StatusChange is the payload of call.status_changed events
type StatusChange struct {
	CallID string      `json:"call_id"`
	From   call.Status `json:"from"`
	To     call.Status `json:"to"`
	Call   *call.Call  `json:"call"`
}

// FinalizeResult is a completed call and its settlement record
type FinalizeResult struct {
	Call      *call.Call         `json:"call"`
	Record    *settlement.Record `json:"record"`
	Duplicate bool               `json:"duplicate"`
}

type Service struct {
	tx     persistence.TxRunner
	calls  call.Repository
	outbox outbox.Repository
	trips  TripRecorder
	policy retry.Policy
	now    func() time.Time
	logger *slog.Logger
}

func NewService(logger *slog.Logger, stores data.Stores, trips TripRecorder, cfg config.DispatchConfig) *Service {
	return &Service{
		tx:     stores.Tx,
		calls:  stores.Calls,
		outbox: stores.Outbox,
		trips:  trips,
		policy: retry.NewPolicy(cfg),
		now:    time.Now,
		logger: logger,
	}
}

// Create stores a new WAITING call
func (s *Service) Create(ctx context.Context, params call.NewCallParams) (*call.Call, error) {
	c, err := call.NewCall(params, s.now())
	if err != nil {
		return nil, err
	}

	err = retry.Do(ctx, s.policy, s.logger, "dispatch.create", func(ctx context.Context) error {
		return s.tx.ExecuteTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			if err := s.calls.WithTx(tx).Create(ctx, c); err != nil {
				return err
			}
			return outbox.EnqueueEvent(ctx, s.outbox.WithTx(tx), shared.EventCallCreated, c.ID.String(), c.Scope(), c)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Call created", "call_id", c.ID.String(), "path", c.Path(), "fare", c.Fare)
	return c, nil
}

func (s *Service) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (*call.Call, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.calls.GetByID(ctx, scope, id)
}

// List returns the office's calls, newest first
func (s *Service) List(ctx context.Context, scope shared.Scope, filter call.ListFilter) ([]*call.Call, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, shared.ValidationError{Field: "status", Message: "unknown call status " + string(st)}
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.calls.List(ctx, scope, filter)
}

func (s *Service) Assign(ctx context.Context, ref CallRef, workerID, workerName string) (*call.Call, error) {
	return s.transition(ctx, ref, call.StatusAssigned, func(c *call.Call, at time.Time) error {
		return c.Assign(workerID, workerName, at)
	}, nil)
}

// Accept is only allowed for the worker the call is assigned to
func (s *Service) Accept(ctx context.Context, ref CallRef, workerID string) (*call.Call, error) {
	return s.transition(ctx, ref, call.StatusAccepted, func(c *call.Call, at time.Time) error {
		return c.Accept(workerID, at)
	}, nil)
}

func (s *Service) Start(ctx context.Context, ref CallRef) (*call.Call, error) {
	return s.transition(ctx, ref, call.StatusInProgress, func(c *call.Call, at time.Time) error {
		return c.Start(at)
	}, nil)
}

// RequestSettlement attaches the payment breakdown. A breakdown whose
// components do not sum to the fare is rejected with FareMismatch.
func (s *Service) RequestSettlement(ctx context.Context, ref CallRef, breakdown call.FareBreakdown) (*call.Call, error) {
	return s.transition(ctx, ref, call.StatusAwaitingSettlement, func(c *call.Call, at time.Time) error {
		return c.RequestSettlement(breakdown, at)
	}, nil)
}

// FinalizeSettlement completes the call and records its settlement line in
// the same transaction, so neither exists without the other.
func (s *Service) FinalizeSettlement(ctx context.Context, ref CallRef) (*FinalizeResult, error) {
	var trip *settlement_engine.TripResult
	c, err := s.transition(ctx, ref, call.StatusCompleted, func(c *call.Call, at time.Time) error {
		return c.FinalizeSettlement(at)
	}, func(ctx context.Context, tx pgx.Tx, c *call.Call) error {
		var err error
		trip, err = s.trips.RecordTripTx(ctx, tx, settlement.TripFromCall(c))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &FinalizeResult{Call: c, Record: trip.Record, Duplicate: trip.Duplicate}, nil
}

// Cancel is idempotent: a call that is already canceled is returned as is
func (s *Service) Cancel(ctx context.Context, ref CallRef, reason string) (*call.Call, error) {
	return s.transition(ctx, ref, call.StatusCanceled, func(c *call.Call, at time.Time) error {
		return c.Cancel(reason, at)
	}, nil)
}

func (s *Service) Hold(ctx context.Context, ref CallRef, reason string) (*call.Call, error) {
	return s.transition(ctx, ref, call.StatusHold, func(c *call.Call, at time.Time) error {
		return c.Hold(reason, at)
	}, nil)
}

// Resume puts a held call back into the waiting queue without an assignee
func (s *Service) Resume(ctx context.Context, ref CallRef) (*call.Call, error) {
	return s.transition(ctx, ref, call.StatusWaiting, func(c *call.Call, at time.Time) error {
		return c.Resume(at)
	}, nil)
}

type afterFunc func(ctx context.Context, tx pgx.Tx, c *call.Call) error

// transition checks ref.Expected -> to before any I/O, then locks the call,
// compares the stored status, applies the change and persists it with its
// outbox event in one transaction.
func (s *Service) transition(ctx context.Context, ref CallRef, to call.Status, apply func(*call.Call, time.Time) error, after afterFunc) (*call.Call, error) {
	if err := ref.Scope.Validate(); err != nil {
		return nil, err
	}
	if !ref.Expected.Valid() {
		return nil, shared.ValidationError{Field: "expected_status", Message: "unknown call status " + string(ref.Expected)}
	}
	if err := call.CheckTransition(ref.ID.String(), ref.Expected, to); err != nil {
		return nil, err
	}

	logger := s.logger.With("call_id", ref.ID.String(), "office_id", ref.Scope.OfficeID, "to", string(to))
	var result *call.Call
	var from call.Status
	// version written by an attempt whose commit outcome was not confirmed
	written := 0

	err := retry.Do(ctx, s.policy, s.logger, "dispatch."+string(to), func(ctx context.Context) error {
		return s.tx.ExecuteTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			calls := s.calls.WithTx(tx)

			c, err := calls.LockForUpdate(ctx, ref.Scope, ref.ID)
			if err != nil {
				return err
			}
			if to == call.StatusCanceled && c.Status == call.StatusCanceled {
				from, result = c.Status, c
				return nil
			}
			if written > 0 && c.Status == to && c.Version == written {
				logger.Warn("Previous attempt committed, reporting it as applied")
				from, result = ref.Expected, c
				return nil
			}
			if c.Status != ref.Expected {
				return shared.StaleStateError{ID: ref.ID.String(), Expected: string(ref.Expected), Actual: string(c.Status)}
			}

			from = c.Status
			if err := apply(c, s.now()); err != nil {
				return err
			}
			if err := calls.Update(ctx, c); err != nil {
				return err
			}

			change := StatusChange{CallID: c.ID.String(), From: from, To: c.Status, Call: c}
			if err := outbox.EnqueueEvent(ctx, s.outbox.WithTx(tx), shared.EventCallStatusChanged, c.ID.String(), c.Scope(), change); err != nil {
				return err
			}

			if after != nil {
				if err := after(ctx, tx, c); err != nil {
					return err
				}
			}

			result = c
			written = c.Version
			return nil
		})
	})
	if err != nil {
		logger.Warn("Call transition rejected", "expected", string(ref.Expected), "error", err)
		return nil, err
	}

	if from == result.Status {
		logger.Info("Call already in target status")
	} else {
		logger.Info("Call transitioned", "from", string(from), "version", result.Version)
	}
	return result, nil
}
