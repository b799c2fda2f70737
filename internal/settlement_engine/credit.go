package settlement_engine

import (
	"context"
	"strings"

	"github.com/dispatch-ledger/internal/domain/credit"
	"github.com/dispatch-ledger/internal/domain/outbox"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/platform/lock"
	"github.com/dispatch-ledger/internal/platform/retry"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentResult reports how much of a payment was applied
type PaymentResult struct {
	Account *credit.Account `json:"account"`
	Applied int64           `json:"applied"`
}

// AddOrIncrementCredit posts amount to the customer's account, creating it on
// first use. Concurrent postings for the same customer end up on one account.
func (e *Engine) AddOrIncrementCredit(ctx context.Context, officeID string, customer credit.Customer, amount int64, detail credit.Detail) (*credit.Account, error) {
	if strings.TrimSpace(officeID) == "" {
		return nil, shared.ValidationError{Field: "office_id", Message: "is required"}
	}
	key, _, err := credit.LookupKey(customer, e.phoneRegion)
	if err != nil {
		return nil, err
	}

	var account *credit.Account
	err = retry.Do(ctx, e.policy, e.logger, "credit.post", func(ctx context.Context) error {
		return lock.Guard(ctx, e.locker, e.logger, "credit:"+officeID+":"+key, func(ctx context.Context) error {
			return e.tx.ExecuteTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
				var err error
				account, err = e.postCreditTx(ctx, tx, officeID, customer, amount, detail)
				return err
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (e *Engine) postCreditTx(ctx context.Context, tx pgx.Tx, officeID string, customer credit.Customer, amount int64, detail credit.Detail) (*credit.Account, error) {
	if amount <= 0 {
		return nil, shared.ValidationError{Field: "amount", Message: "must be positive"}
	}
	key, phone, err := credit.LookupKey(customer, e.phoneRegion)
	if err != nil {
		return nil, err
	}

	credits := e.credits.WithTx(tx)
	at := e.now()

	stored, err := credits.UpsertIncrement(ctx, &credit.Account{
		ID:            uuid.New(),
		OfficeID:      officeID,
		LookupKey:     key,
		CustomerPhone: phone,
		CustomerName:  strings.TrimSpace(customer.Name),
	}, amount, at)
	if err != nil {
		return nil, err
	}

	entry, err := credit.NewEntry(stored.ID, amount, detail, at)
	if err != nil {
		return nil, err
	}
	if err := credits.AddEntry(ctx, entry); err != nil {
		return nil, err
	}

	account, err := credits.GetByID(ctx, stored.ID)
	if err != nil {
		return nil, err
	}

	scope := shared.Scope{OfficeID: officeID}
	if err := outbox.EnqueueEvent(ctx, e.outbox.WithTx(tx), shared.EventCreditPosted, account.ID.String(), scope, entry); err != nil {
		return nil, err
	}

	e.logger.Info("Credit posted",
		"office_id", officeID,
		"account_id", account.ID.String(),
		"amount", amount,
		"total_outstanding", account.TotalOutstanding,
	)
	return account, nil
}

// MarkCreditPaid applies a payment of at most the outstanding total, oldest entries first
func (e *Engine) MarkCreditPaid(ctx context.Context, accountID uuid.UUID, amount int64) (*PaymentResult, error) {
	if amount <= 0 {
		return nil, shared.ValidationError{Field: "amount", Message: "must be positive"}
	}

	var result *PaymentResult
	err := retry.Do(ctx, e.policy, e.logger, "credit.pay", func(ctx context.Context) error {
		return e.tx.ExecuteTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			credits := e.credits.WithTx(tx)

			account, err := credits.LockForUpdate(ctx, accountID)
			if err != nil {
				return err
			}
			applied, touched, err := account.ApplyPayment(amount, e.now())
			if err != nil {
				return err
			}
			if err := credits.UpdatePayment(ctx, account, touched); err != nil {
				return err
			}

			scope := shared.Scope{OfficeID: account.OfficeID}
			payment := map[string]int64{"applied": applied, "total_outstanding": account.TotalOutstanding}
			if err := outbox.EnqueueEvent(ctx, e.outbox.WithTx(tx), shared.EventCreditPaid, account.ID.String(), scope, payment); err != nil {
				return err
			}

			result = &PaymentResult{Account: account, Applied: applied}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Credit payment applied",
		"account_id", accountID.String(),
		"requested", amount,
		"applied", result.Applied,
		"total_outstanding", result.Account.TotalOutstanding,
	)
	return result, nil
}

func (e *Engine) GetCreditAccount(ctx context.Context, accountID uuid.UUID) (*credit.Account, error) {
	return e.credits.GetByID(ctx, accountID)
}

// FindCreditAccount resolves the customer the same way postings do
func (e *Engine) FindCreditAccount(ctx context.Context, officeID string, customer credit.Customer) (*credit.Account, error) {
	key, _, err := credit.LookupKey(customer, e.phoneRegion)
	if err != nil {
		return nil, err
	}
	return e.credits.FindByLookupKey(ctx, officeID, key)
}
