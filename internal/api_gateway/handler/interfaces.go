package handler

import (
	"context"
	"time"

	"github.com/dispatch-ledger/internal/claim"
	"github.com/dispatch-ledger/internal/dispatch"
	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/credit"
	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/domain/sharedcall"
	"github.com/dispatch-ledger/internal/settlement_engine"
	"github.com/google/uuid"
)

// DispatchService is the Dispatch operation group
type DispatchService interface {
	Create(ctx context.Context, params call.NewCallParams) (*call.Call, error)
	Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (*call.Call, error)
	List(ctx context.Context, scope shared.Scope, filter call.ListFilter) ([]*call.Call, error)
	Assign(ctx context.Context, ref dispatch.CallRef, workerID, workerName string) (*call.Call, error)
	Accept(ctx context.Context, ref dispatch.CallRef, workerID string) (*call.Call, error)
	Start(ctx context.Context, ref dispatch.CallRef) (*call.Call, error)
	RequestSettlement(ctx context.Context, ref dispatch.CallRef, breakdown call.FareBreakdown) (*call.Call, error)
	FinalizeSettlement(ctx context.Context, ref dispatch.CallRef) (*dispatch.FinalizeResult, error)
	Cancel(ctx context.Context, ref dispatch.CallRef, reason string) (*call.Call, error)
	Hold(ctx context.Context, ref dispatch.CallRef, reason string) (*call.Call, error)
	Resume(ctx context.Context, ref dispatch.CallRef) (*call.Call, error)
}

// BoardView serves the live call board of an office
type BoardView interface {
	Snapshot(ctx context.Context, scope shared.Scope) ([]dispatch.CallSummary, error)
}

// SharingService is the Sharing operation group
type SharingService interface {
	Publish(ctx context.Context, params sharedcall.PublishParams) (*sharedcall.SharedCall, error)
	Claim(ctx context.Context, sharedCallID uuid.UUID, claimer shared.Scope) (*claim.ClaimResult, error)
	Complete(ctx context.Context, sharedCallID uuid.UUID, completedAt time.Time) (*sharedcall.SharedCall, error)
	Get(ctx context.Context, sharedCallID uuid.UUID) (*sharedcall.SharedCall, error)
	ListOpen(ctx context.Context, targetRegionID string, limit int) ([]*sharedcall.SharedCall, error)
}

// SettlementService is the Settlement operation group
type SettlementService interface {
	RecordCompletedTrip(ctx context.Context, trip settlement.Trip) (*settlement_engine.TripResult, error)
	RecordAdjustment(ctx context.Context, req settlement_engine.AdjustmentRequest) (*settlement.Record, error)
	CloseSession(ctx context.Context, scope shared.Scope) (*settlement_engine.CloseResult, error)
	CurrentSession(ctx context.Context, scope shared.Scope) (*settlement.Session, error)
	SessionReport(ctx context.Context, scope shared.Scope, sessionID uuid.UUID) (*settlement.Report, error)
	DateRangeReport(ctx context.Context, scope shared.Scope, from, to string) (*settlement.Report, error)
	AddOrIncrementCredit(ctx context.Context, officeID string, customer credit.Customer, amount int64, detail credit.Detail) (*credit.Account, error)
	FindCreditAccount(ctx context.Context, officeID string, customer credit.Customer) (*credit.Account, error)
	GetCreditAccount(ctx context.Context, accountID uuid.UUID) (*credit.Account, error)
	MarkCreditPaid(ctx context.Context, accountID uuid.UUID, amount int64) (*settlement_engine.PaymentResult, error)
}

// PointsService covers balances, admin transfers and the journal
type PointsService interface {
	Balance(ctx context.Context, officeID string) (*points.Balance, error)
	Transfer(ctx context.Context, req settlement_engine.TransferRequest) (*points.Transfer, error)
	VerifyClosedSum(ctx context.Context) (int64, error)
	Journal(ctx context.Context, officeID string, page, perPage int) ([]*points.JournalEntry, int64, error)
}

var (
	_ DispatchService   = (*dispatch.Service)(nil)
	_ BoardView         = (*dispatch.Board)(nil)
	_ SharingService    = (*claim.Coordinator)(nil)
	_ SettlementService = (*settlement_engine.Engine)(nil)
	_ PointsService     = (*settlement_engine.Engine)(nil)
)
