package settlement_engine

import (
	"context"
	"errors"

	"github.com/dispatch-ledger/internal/domain/outbox"
	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/platform/retry"
	"github.com/jackc/pgx/v5"
)

// ErrJournalUnavailable is returned by journal queries when no journal store is configured
var ErrJournalUnavailable = errors.New("points journal is not configured")

// ApplyTransferTx moves t.Amount from t.FromOfficeID to t.ToOfficeID inside
// the caller's transaction. Both sides are written or neither is.
func (e *Engine) ApplyTransferTx(ctx context.Context, tx pgx.Tx, t *points.Transfer) error {
	balances := e.points.WithTx(tx)

	if _, err := balances.ApplyDelta(ctx, t.FromOfficeID, -t.Amount, t.CreatedAt); err != nil {
		return err
	}
	if _, err := balances.ApplyDelta(ctx, t.ToOfficeID, t.Amount, t.CreatedAt); err != nil {
		return err
	}

	scope := shared.Scope{OfficeID: t.ToOfficeID}
	return outbox.EnqueueEvent(ctx, e.outbox.WithTx(tx), shared.EventPointsTransferred, t.ID.String(), scope, t)
}

// TransferRequest is an explicit admin charge between two offices
type TransferRequest struct {
	FromOfficeID string `json:"from_office_id"`
	ToOfficeID   string `json:"to_office_id"`
	Amount       int64  `json:"amount"`
	Reason       string `json:"reason"`
}

// Transfer applies an admin charge as one paired transfer
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*points.Transfer, error) {
	reason := req.Reason
	if reason == "" {
		reason = points.ReasonAdminCharge
	}
	transfer, err := points.NewTransfer(req.FromOfficeID, req.ToOfficeID, req.Amount, reason, e.now())
	if err != nil {
		return nil, err
	}

	err = retry.Do(ctx, e.policy, e.logger, "points.transfer", func(ctx context.Context) error {
		return e.tx.ExecuteTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			return e.ApplyTransferTx(ctx, tx, transfer)
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Points transferred",
		"transfer_id", transfer.ID.String(),
		"from_office_id", transfer.FromOfficeID,
		"to_office_id", transfer.ToOfficeID,
		"amount", transfer.Amount,
	)
	return transfer, nil
}

func (e *Engine) Balance(ctx context.Context, officeID string) (*points.Balance, error) {
	return e.points.GetByOfficeID(ctx, officeID)
}

// VerifyClosedSum returns the sum of every office balance, which must be zero
func (e *Engine) VerifyClosedSum(ctx context.Context) (int64, error) {
	sum, err := e.points.Sum(ctx)
	if err != nil {
		return 0, err
	}
	if sum != 0 {
		e.logger.Error("Points closed-sum invariant violated", "sum", sum)
	}
	return sum, nil
}

// Journal returns a page of an office's journal and the office's total entry count
func (e *Engine) Journal(ctx context.Context, officeID string, page, perPage int) ([]*points.JournalEntry, int64, error) {
	if e.journal == nil {
		return nil, 0, ErrJournalUnavailable
	}
	offset := (page - 1) * perPage

	entries, err := e.journal.GetByOfficeID(ctx, officeID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := e.journal.CountByOfficeID(ctx, officeID)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
