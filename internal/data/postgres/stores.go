package postgres

import (
	"log/slog"

	"github.com/dispatch-ledger/internal/data"
	"github.com/dispatch-ledger/internal/platform/persistence"
)

// NewStores builds every Postgres repository over db
func NewStores(logger *slog.Logger, db *persistence.PostgresDB) data.Stores {
	return data.Stores{
		Tx:          db,
		Calls:       NewCallRepository(logger, db),
		SharedCalls: NewSharedCallRepository(logger, db),
		Points:      NewPointsRepository(logger, db),
		Sessions:    NewSessionRepository(logger, db),
		Records:     NewRecordRepository(logger, db),
		Credits:     NewCreditRepository(logger, db),
		Outbox:      NewOutboxRepository(logger, db),
	}
}
