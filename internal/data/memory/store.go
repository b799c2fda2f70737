// Package memory is an in-process implementation of every repository and of
// persistence.TxRunner. Transactions work on a private copy of the state and
// publish it on commit, so readers never observe a partially applied
// transaction and a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dispatch-ledger/internal/data"
	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/credit"
	"github.com/dispatch-ledger/internal/domain/outbox"
	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/domain/sharedcall"
	"github.com/dispatch-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const defaultTxTimeout = 5 * time.Second

type state struct {
	calls       map[uuid.UUID]call.Call
	sharedCalls map[uuid.UUID]sharedcall.SharedCall
	balances    map[string]points.Balance
	sessions    map[uuid.UUID]settlement.Session
	records     map[uuid.UUID]settlement.Record
	accounts    map[uuid.UUID]credit.Account
	entries     map[uuid.UUID][]credit.Entry
	outbox      []outbox.Message
	outboxSeq   int64
}

func newState() *state {
	return &state{
		calls:       make(map[uuid.UUID]call.Call),
		sharedCalls: make(map[uuid.UUID]sharedcall.SharedCall),
		balances:    make(map[string]points.Balance),
		sessions:    make(map[uuid.UUID]settlement.Session),
		records:     make(map[uuid.UUID]settlement.Record),
		accounts:    make(map[uuid.UUID]credit.Account),
		entries:     make(map[uuid.UUID][]credit.Entry),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.calls {
		c.calls[k] = v
	}
	for k, v := range s.sharedCalls {
		c.sharedCalls[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = append([]credit.Entry(nil), v...)
	}
	c.outbox = append([]outbox.Message(nil), s.outbox...)
	c.outboxSeq = s.outboxSeq
	return c
}

// memTx marks a transaction of this store. The embedded pgx.Tx is always nil;
// repositories only use the private state.
type memTx struct {
	pgx.Tx
	st *state
}

func txState(tx pgx.Tx) (*memTx, bool) {
	mt, ok := tx.(*memTx)
	return mt, ok && mt != nil
}

// Store holds the committed state. Transactions and standalone writes are
// serialized by txMu; mu guards the committed pointer for readers.
type Store struct {
	txMu      sync.Mutex
	mu        sync.RWMutex
	committed *state
	txTimeout time.Duration
	logger    *slog.Logger
}

var _ persistence.TxRunner = (*Store)(nil)

func NewStore(logger *slog.Logger, txTimeout time.Duration) *Store {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &Store{
		committed: newState(),
		txTimeout: txTimeout,
		logger:    logger,
	}
}

// ExecuteTx runs fn against a private copy of the state and commits it when fn
// succeeds. Like the Postgres runner, cancellation is only honoured before fn starts.
func (s *Store) ExecuteTx(ctx context.Context, fn persistence.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return shared.AbortedError{Op: "begin", Err: err}
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	s.mu.RLock()
	tx := &memTx{st: s.committed.clone()}
	s.mu.RUnlock()

	if err := fn(txCtx, tx); err != nil {
		s.logger.Debug("Rolled back in-memory transaction", "error", err)
		return persistence.ClassifyError("transaction", err)
	}
	if err := txCtx.Err(); err != nil {
		return shared.AbortedError{Op: "commit", Err: err}
	}

	s.mu.Lock()
	s.committed = tx.st
	s.mu.Unlock()
	return nil
}

func (s *Store) read(tx *memTx, fn func(st *state) error) error {
	if tx != nil {
		return fn(tx.st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.committed)
}

// write outside a transaction applies directly to the committed state
func (s *Store) write(tx *memTx, fn func(st *state) error) error {
	if tx != nil {
		return fn(tx.st)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.committed)
}

// Stores exposes every repository of the store
func (s *Store) Stores() data.Stores {
	return data.Stores{
		Tx:          s,
		Calls:       &CallRepository{store: s},
		SharedCalls: &SharedCallRepository{store: s},
		Points:      &PointsRepository{store: s},
		Sessions:    &SessionRepository{store: s},
		Records:     &RecordRepository{store: s},
		Credits:     &CreditRepository{store: s},
		Outbox:      &OutboxRepository{store: s},
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
