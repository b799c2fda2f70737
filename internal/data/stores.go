// Package data groups the repositories of one storage backend so services can
// be wired against either Postgres or the in-process store.
package data

import (
	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/credit"
	"github.com/dispatch-ledger/internal/domain/outbox"
	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/sharedcall"
	"github.com/dispatch-ledger/internal/platform/persistence"
)

// Stores is every repository of a backend plus the transaction runner they share
type Stores struct {
	Tx          persistence.TxRunner
	Calls       call.Repository
	SharedCalls sharedcall.Repository
	Points      points.Repository
	Sessions    settlement.SessionRepository
	Records     settlement.RecordRepository
	Credits     credit.Repository
	Outbox      outbox.Repository
}
