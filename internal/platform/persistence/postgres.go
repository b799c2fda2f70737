package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dispatch-ledger/internal/config"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTxTimeout = 5 * time.Second

// Querier supports database operations for both pool and transactions
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Ensure interfaces are satisfied (compile-time check)
var _ Querier = (*pgxpool.Pool)(nil)
var _ Querier = (pgx.Tx)(nil)

// TxFunc is the body of a transaction. It must use the ctx it is given.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// TxRunner executes a function as one atomic unit against the store
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn TxFunc) error
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresDB struct {
	pool      *pgxpool.Pool
	beginner  txBeginner
	txTimeout time.Duration
	logger    *slog.Logger
}

var _ TxRunner = (*PostgresDB)(nil)

func NewPostgresDB(ctx context.Context, logger *slog.Logger, cfg *config.PostgresConfig) (*PostgresDB, error) {
	err := RunMigrations(cfg.URL, cfg.MigrationsPath)
	if err != nil {
		return nil, err
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL")

	txTimeout := cfg.RequestTimeout
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}

	return &PostgresDB{
		pool:      pool,
		beginner:  pool,
		txTimeout: txTimeout,
		logger:    logger,
	}, nil
}

func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *PostgresDB) Close() {
	db.pool.Close()
	db.logger.Info("Closed PostgreSQL connection")
}

// ExecuteTx runs fn in a transaction, rolling back on error or panic.
// A transaction can only be cancelled before it begins: once started it runs
// detached from ctx cancellation, bounded by the store request timeout.
// Store contention, unavailability and timeouts surface as shared.ErrTransactionAborted.
func (db *PostgresDB) ExecuteTx(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return shared.AbortedError{Op: "begin", Err: err}
	}

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), db.txTimeout)
	defer cancel()

	tx, err := db.beginner.Begin(txCtx)
	if err != nil {
		return shared.AbortedError{Op: "begin", Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx)) // Attempt rollback on panic
			panic(r)
		}
	}()

	if err := fn(txCtx, tx); err != nil {
		rbCtx, rbCancel := context.WithTimeout(context.WithoutCancel(ctx), db.txTimeout)
		defer rbCancel()
		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			db.logger.Error("Failed to roll back transaction", "error", rbErr, "cause", err)
		}
		return ClassifyError("transaction", err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return shared.AbortedError{Op: "commit", Err: err}
	}
	return nil
}

// ClassifyError maps store-level failures to shared.ErrTransactionAborted and
// leaves domain errors untouched.
func ClassifyError(op string, err error) error {
	if err == nil || errors.Is(err, shared.ErrTransactionAborted) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"57014": // query_canceled (statement timeout)
			return shared.AbortedError{Op: op, Err: err}
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return shared.AbortedError{Op: op, Err: err}
	}
	return err
}
