package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dispatch-ledger/internal/domain/credit"
	"github.com/dispatch-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const creditAccountColumns = `id, office_id, lookup_key, customer_phone, customer_name, total_outstanding,
		created_at, updated_at, last_paid_at`

const creditEntryColumns = `id, account_id, call_id, entry_date, departure, destination, amount, paid_amount, created_at`

// CreditRepository implements credit.Repository over credit_accounts and credit_entries
type CreditRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewCreditRepository(logger *slog.Logger, db *persistence.PostgresDB) credit.Repository {
	return &CreditRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *CreditRepository) WithTx(tx pgx.Tx) credit.Repository {
	return &CreditRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// UpsertIncrement creates or increments the account in one statement. The
// unique (office_id, lookup_key) constraint makes lookup-or-create atomic.
func (r *CreditRepository) UpsertIncrement(ctx context.Context, a *credit.Account, amount int64, at time.Time) (*credit.Account, error) {
	query := `
		INSERT INTO credit_accounts (id, office_id, lookup_key, customer_phone, customer_name, total_outstanding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (office_id, lookup_key) DO UPDATE
		SET total_outstanding = credit_accounts.total_outstanding + EXCLUDED.total_outstanding,
			customer_name = CASE WHEN EXCLUDED.customer_name <> '' THEN EXCLUDED.customer_name ELSE credit_accounts.customer_name END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + creditAccountColumns

	stored, err := scanCreditAccount(r.querier.QueryRow(ctx, query,
		a.ID,
		a.OfficeID,
		a.LookupKey,
		a.CustomerPhone,
		a.CustomerName,
		amount,
		at,
		at,
	))
	if err != nil {
		r.logger.Error("Failed to upsert credit account", "office_id", a.OfficeID, "lookup_key", a.LookupKey, "error", err)
		return nil, fmt.Errorf("failed to upsert credit account: %w", err)
	}

	return stored, nil
}

func (r *CreditRepository) AddEntry(ctx context.Context, e *credit.Entry) error {
	query := `
		INSERT INTO credit_entries (` + creditEntryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		e.ID,
		e.AccountID,
		e.CallID,
		e.Date,
		e.Departure,
		e.Destination,
		e.Amount,
		e.PaidAmount,
		e.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to add credit entry", "account_id", e.AccountID.String(), "error", err)
		return fmt.Errorf("failed to add credit entry: %w", err)
	}

	return nil
}

func (r *CreditRepository) GetByID(ctx context.Context, id uuid.UUID) (*credit.Account, error) {
	query := `
		SELECT ` + creditAccountColumns + `
		FROM credit_accounts
		WHERE id = $1
	`
	return r.getWithEntries(ctx, "get", id.String(), query, id)
}

// LockForUpdate locks the account row; payments on the same account serialize here
func (r *CreditRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*credit.Account, error) {
	query := `
		SELECT ` + creditAccountColumns + `
		FROM credit_accounts
		WHERE id = $1
		FOR UPDATE
	`
	return r.getWithEntries(ctx, "lock", id.String(), query, id)
}

func (r *CreditRepository) FindByLookupKey(ctx context.Context, officeID, key string) (*credit.Account, error) {
	query := `
		SELECT ` + creditAccountColumns + `
		FROM credit_accounts
		WHERE office_id = $1 AND lookup_key = $2
	`
	return r.getWithEntries(ctx, "find", key, query, officeID, key)
}

func (r *CreditRepository) getWithEntries(ctx context.Context, verb, key, query string, args ...any) (*credit.Account, error) {
	a, err := scanCreditAccount(r.querier.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credit.ErrAccountNotFound{Key: key}
		}
		r.logger.Error("Failed to "+verb+" credit account", "key", key, "error", err)
		return nil, fmt.Errorf("failed to %s credit account: %w", verb, err)
	}

	entries, err := r.listEntries(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.Entries = entries
	return a, nil
}

func (r *CreditRepository) listEntries(ctx context.Context, accountID uuid.UUID) ([]*credit.Entry, error) {
	query := `
		SELECT ` + creditEntryColumns + `
		FROM credit_entries
		WHERE account_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.querier.Query(ctx, query, accountID)
	if err != nil {
		r.logger.Error("Failed to list credit entries", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to list credit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*credit.Entry, 0)
	for rows.Next() {
		var e credit.Entry
		if err := rows.Scan(
			&e.ID,
			&e.AccountID,
			&e.CallID,
			&e.Date,
			&e.Departure,
			&e.Destination,
			&e.Amount,
			&e.PaidAmount,
			&e.CreatedAt,
		); err != nil {
			r.logger.Error("Failed to scan credit entry", "error", err)
			return nil, fmt.Errorf("failed to scan credit entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over credit entries", "error", err)
		return nil, fmt.Errorf("error iterating over credit entries: %w", err)
	}

	return entries, nil
}

// UpdatePayment writes the new outstanding total and the paid amount of every touched entry
func (r *CreditRepository) UpdatePayment(ctx context.Context, a *credit.Account, touched []*credit.Entry) error {
	query := `
		UPDATE credit_accounts
		SET total_outstanding = $1, updated_at = $2, last_paid_at = $3
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, a.TotalOutstanding, a.UpdatedAt, a.LastPaidAt, a.ID)
	if err != nil {
		r.logger.Error("Failed to update credit account", "id", a.ID.String(), "error", err)
		return fmt.Errorf("failed to update credit account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return credit.ErrAccountNotFound{Key: a.ID.String()}
	}

	for _, e := range touched {
		if _, err := r.querier.Exec(ctx, `UPDATE credit_entries SET paid_amount = $1 WHERE id = $2`, e.PaidAmount, e.ID); err != nil {
			r.logger.Error("Failed to update credit entry", "id", e.ID.String(), "error", err)
			return fmt.Errorf("failed to update credit entry: %w", err)
		}
	}

	return nil
}

func scanCreditAccount(row rowScanner) (*credit.Account, error) {
	var a credit.Account
	err := row.Scan(
		&a.ID,
		&a.OfficeID,
		&a.LookupKey,
		&a.CustomerPhone,
		&a.CustomerName,
		&a.TotalOutstanding,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.LastPaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
