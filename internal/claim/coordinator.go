// Package claim implements the Sharing operation group: publishing overflow
// calls and moving a claimed call into the claiming office together with its
// point transfer, exactly once.
package claim

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dispatch-ledger/internal/config"
	"github.com/dispatch-ledger/internal/data"
	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/outbox"
	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/domain/sharedcall"
	"github.com/dispatch-ledger/internal/platform/lock"
	"github.com/dispatch-ledger/internal/platform/persistence"
	"github.com/dispatch-ledger/internal/platform/retry"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const defaultListLimit = 50

// PointsLedger applies a paired point transfer inside the caller's transaction
type PointsLedger interface {
	ApplyTransferTx(ctx context.Context, tx pgx.Tx, t *points.Transfer) error
}

// ClaimResult is the outcome of a successful claim. Duplicate is set when the
// claim had already been applied for the same office; nothing was written.
type ClaimResult struct {
	SharedCall  *sharedcall.SharedCall `json:"shared_call"`
	Call        *call.Call             `json:"call"`
	PointAmount int64                  `json:"point_amount"`
	Duplicate   bool                   `json:"duplicate"`
}

type Coordinator struct {
	tx          persistence.TxRunner
	sharedCalls sharedcall.Repository
	calls       call.Repository
	outbox      outbox.Repository
	ledger      PointsLedger
	locker      lock.Locker
	ratio       points.Ratio
	policy      retry.Policy
	now         func() time.Time
	logger      *slog.Logger
}

// NewCoordinator fails when the configured point ratio is outside (0, 100].
// locker may be nil.
func NewCoordinator(logger *slog.Logger, stores data.Stores, ledger PointsLedger, locker lock.Locker, cfg config.DispatchConfig) (*Coordinator, error) {
	percent := cfg.PointRatioPercent
	if percent == 0 {
		percent = points.DefaultRatioPercent
	}
	ratio, err := points.NewRatio(percent)
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		tx:          stores.Tx,
		sharedCalls: stores.SharedCalls,
		calls:       stores.Calls,
		outbox:      stores.Outbox,
		ledger:      ledger,
		locker:      locker,
		ratio:       ratio,
		policy:      retry.NewPolicy(cfg),
		now:         time.Now,
		logger:      logger,
	}, nil
}

// Publish shares a call of the source office with every other office
func (c *Coordinator) Publish(ctx context.Context, params sharedcall.PublishParams) (*sharedcall.SharedCall, error) {
	sc, err := sharedcall.New(params, c.now())
	if err != nil {
		return nil, err
	}

	err = retry.Do(ctx, c.policy, c.logger, "claim.publish", func(ctx context.Context) error {
		return c.tx.ExecuteTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			if err := c.sharedCalls.WithTx(tx).Create(ctx, sc); err != nil {
				return err
			}
			return outbox.EnqueueEvent(ctx, c.outbox.WithTx(tx), shared.EventSharedCallPublished, sc.ID.String(), sc.SourceScope(), sc)
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Shared call published",
		"shared_call_id", sc.ID.String(),
		"source_office_id", sc.SourceOfficeID,
		"target_region_id", sc.TargetRegionID,
		"fare", sc.Fare,
	)
	return sc, nil
}

// Claim copies an OPEN shared call into the claiming office as a WAITING call
// and transfers the point share from the claimer to the source office, all in
// one transaction. Losing a race surfaces as AlreadyClaimed with no side effect.
func (c *Coordinator) Claim(ctx context.Context, sharedCallID uuid.UUID, claimer shared.Scope) (*ClaimResult, error) {
	if err := claimer.Validate(); err != nil {
		return nil, err
	}
	logger := c.logger.With("shared_call_id", sharedCallID.String(), "claiming_office_id", claimer.OfficeID)

	var result *ClaimResult
	err := retry.Do(ctx, c.policy, c.logger, "claim.claim", func(ctx context.Context) error {
		return lock.Guard(ctx, c.locker, c.logger, "claim:"+sharedCallID.String(), func(ctx context.Context) error {
			return c.tx.ExecuteTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
				var err error
				result, err = c.claimTx(ctx, tx, sharedCallID, claimer)
				return err
			})
		})
	})
	if err != nil {
		if errors.Is(err, shared.ErrAlreadyClaimed) {
			logger.Info("Shared call claim lost", "error", err)
		} else {
			logger.Warn("Shared call claim failed", "error", err, "retryable", shared.IsRetryable(err))
		}
		return nil, err
	}

	if result.Duplicate {
		logger.Info("Shared call claim already applied", "dest_call_id", result.Call.ID.String())
	} else {
		logger.Info("Shared call claimed",
			"dest_call_id", result.Call.ID.String(),
			"source_office_id", result.SharedCall.SourceOfficeID,
			"point_amount", result.PointAmount,
		)
	}
	return result, nil
}

func (c *Coordinator) claimTx(ctx context.Context, tx pgx.Tx, sharedCallID uuid.UUID, claimer shared.Scope) (*ClaimResult, error) {
	sharedCalls := c.sharedCalls.WithTx(tx)
	calls := c.calls.WithTx(tx)
	at := c.now()

	sc, err := sharedCalls.LockForUpdate(ctx, sharedCallID)
	if err != nil {
		return nil, err
	}

	if sc.Processed {
		if sc.ClaimedOfficeID != claimer.OfficeID || sc.DestCallID == nil {
			return nil, sharedcall.ErrAlreadyClaimed{SharedCallID: sc.ID}
		}
		// the retry may name a different region; the dest call lives where it was claimed
		existing, err := calls.GetByID(ctx, sc.ClaimedScope(), *sc.DestCallID)
		if err != nil {
			return nil, err
		}
		return &ClaimResult{SharedCall: sc, Call: existing, PointAmount: c.ratio.Apply(sc.Fare), Duplicate: true}, nil
	}
	if sc.Status != sharedcall.StatusOpen {
		return nil, sharedcall.ErrAlreadyClaimed{SharedCallID: sc.ID}
	}
	if sc.SourceOfficeID == claimer.OfficeID {
		return nil, shared.ValidationError{Field: "office_id", Message: "an office cannot claim its own shared call"}
	}

	dest := sc.ToCall(claimer, at)
	if err := calls.Create(ctx, dest); err != nil {
		return nil, err
	}

	amount := c.ratio.Apply(sc.Fare)
	transfer, err := points.NewTransfer(claimer.OfficeID, sc.SourceOfficeID, amount, points.ReasonClaim, at)
	if err != nil {
		return nil, err
	}
	transfer.SharedCallID = &sc.ID
	if err := c.ledger.ApplyTransferTx(ctx, tx, transfer); err != nil {
		return nil, err
	}

	if err := sc.MarkClaimed(claimer, dest.ID, at); err != nil {
		return nil, err
	}
	if err := sharedCalls.MarkClaimed(ctx, sc); err != nil {
		return nil, err
	}

	events := c.outbox.WithTx(tx)
	if err := outbox.EnqueueEvent(ctx, events, shared.EventCallCreated, dest.ID.String(), claimer, dest); err != nil {
		return nil, err
	}
	if err := outbox.EnqueueEvent(ctx, events, shared.EventSharedCallClaimed, sc.ID.String(), sc.SourceScope(), sc); err != nil {
		return nil, err
	}

	return &ClaimResult{SharedCall: sc, Call: dest, PointAmount: amount}, nil
}

// Complete applies the external completion notification of a claimed call.
// A repeated notification is reported as success without writing.
func (c *Coordinator) Complete(ctx context.Context, sharedCallID uuid.UUID, completedAt time.Time) (*sharedcall.SharedCall, error) {
	if completedAt.IsZero() {
		completedAt = c.now()
	}

	var result *sharedcall.SharedCall
	duplicate := false
	err := retry.Do(ctx, c.policy, c.logger, "claim.complete", func(ctx context.Context) error {
		return c.tx.ExecuteTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			sharedCalls := c.sharedCalls.WithTx(tx)

			sc, err := sharedCalls.LockForUpdate(ctx, sharedCallID)
			if err != nil {
				return err
			}
			err = sc.MarkCompleted(completedAt)
			if errors.Is(err, shared.ErrDuplicateApplication) {
				result, duplicate = sc, true
				return nil
			}
			if err != nil {
				return err
			}
			if err := sharedCalls.MarkCompleted(ctx, sc); err != nil {
				return err
			}
			if err := outbox.EnqueueEvent(ctx, c.outbox.WithTx(tx), shared.EventSharedCallCompleted, sc.ID.String(), sc.SourceScope(), sc); err != nil {
				return err
			}

			result, duplicate = sc, false
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Shared call completed", "shared_call_id", sharedCallID.String(), "duplicate", duplicate)
	return result, nil
}

func (c *Coordinator) Get(ctx context.Context, sharedCallID uuid.UUID) (*sharedcall.SharedCall, error) {
	return c.sharedCalls.GetByID(ctx, sharedCallID)
}

// ListOpen returns OPEN shared calls visible to targetRegionID, oldest first.
// Calls without a target region are visible everywhere; an empty targetRegionID lists all.
func (c *Coordinator) ListOpen(ctx context.Context, targetRegionID string, limit int) ([]*sharedcall.SharedCall, error) {
	if limit <= 0 || limit > defaultListLimit*4 {
		limit = defaultListLimit
	}
	return c.sharedCalls.ListOpen(ctx, targetRegionID, limit)
}
