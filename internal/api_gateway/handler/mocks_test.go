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
	"github.com/stretchr/testify/mock"
)

// result returns args[0] as T, or the zero value when it is nil
func result[T any](args mock.Arguments) T {
	var zero T
	if v := args.Get(0); v != nil {
		return v.(T)
	}
	return zero
}

type MockDispatchService struct {
	mock.Mock
}

func (m *MockDispatchService) Create(ctx context.Context, params call.NewCallParams) (*call.Call, error) {
	args := m.Called(ctx, params)
	return result[*call.Call](args), args.Error(1)
}

func (m *MockDispatchService) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (*call.Call, error) {
	args := m.Called(ctx, scope, id)
	return result[*call.Call](args), args.Error(1)
}

func (m *MockDispatchService) List(ctx context.Context, scope shared.Scope, filter call.ListFilter) ([]*call.Call, error) {
	args := m.Called(ctx, scope, filter)
	return result[[]*call.Call](args), args.Error(1)
}

func (m *MockDispatchService) Assign(ctx context.Context, ref dispatch.CallRef, workerID, workerName string) (*call.Call, error) {
	args := m.Called(ctx, ref, workerID, workerName)
	return result[*call.Call](args), args.Error(1)
}

func (m *MockDispatchService) Accept(ctx context.Context, ref dispatch.CallRef, workerID string) (*call.Call, error) {
	args := m.Called(ctx, ref, workerID)
	return result[*call.Call](args), args.Error(1)
}

func (m *MockDispatchService) Start(ctx context.Context, ref dispatch.CallRef) (*call.Call, error) {
	args := m.Called(ctx, ref)
	return result[*call.Call](args), args.Error(1)
}

func (m *MockDispatchService) RequestSettlement(ctx context.Context, ref dispatch.CallRef, breakdown call.FareBreakdown) (*call.Call, error) {
	args := m.Called(ctx, ref, breakdown)
	return result[*call.Call](args), args.Error(1)
}

func (m *MockDispatchService) FinalizeSettlement(ctx context.Context, ref dispatch.CallRef) (*dispatch.FinalizeResult, error) {
	args := m.Called(ctx, ref)
	return result[*dispatch.FinalizeResult](args), args.Error(1)
}

func (m *MockDispatchService) Cancel(ctx context.Context, ref dispatch.CallRef, reason string) (*call.Call, error) {
	args := m.Called(ctx, ref, reason)
	return result[*call.Call](args), args.Error(1)
}

func (m *MockDispatchService) Hold(ctx context.Context, ref dispatch.CallRef, reason string) (*call.Call, error) {
	args := m.Called(ctx, ref, reason)
	return result[*call.Call](args), args.Error(1)
}

func (m *MockDispatchService) Resume(ctx context.Context, ref dispatch.CallRef) (*call.Call, error) {
	args := m.Called(ctx, ref)
	return result[*call.Call](args), args.Error(1)
}

type MockBoardView struct {
	mock.Mock
}

func (m *MockBoardView) Snapshot(ctx context.Context, scope shared.Scope) ([]dispatch.CallSummary, error) {
	args := m.Called(ctx, scope)
	return result[[]dispatch.CallSummary](args), args.Error(1)
}

type MockSharingService struct {
	mock.Mock
}

func (m *MockSharingService) Publish(ctx context.Context, params sharedcall.PublishParams) (*sharedcall.SharedCall, error) {
	args := m.Called(ctx, params)
	return result[*sharedcall.SharedCall](args), args.Error(1)
}

func (m *MockSharingService) Claim(ctx context.Context, sharedCallID uuid.UUID, claimer shared.Scope) (*claim.ClaimResult, error) {
	args := m.Called(ctx, sharedCallID, claimer)
	return result[*claim.ClaimResult](args), args.Error(1)
}

func (m *MockSharingService) Complete(ctx context.Context, sharedCallID uuid.UUID, completedAt time.Time) (*sharedcall.SharedCall, error) {
	args := m.Called(ctx, sharedCallID, completedAt)
	return result[*sharedcall.SharedCall](args), args.Error(1)
}

func (m *MockSharingService) Get(ctx context.Context, sharedCallID uuid.UUID) (*sharedcall.SharedCall, error) {
	args := m.Called(ctx, sharedCallID)
	return result[*sharedcall.SharedCall](args), args.Error(1)
}

func (m *MockSharingService) ListOpen(ctx context.Context, targetRegionID string, limit int) ([]*sharedcall.SharedCall, error) {
	args := m.Called(ctx, targetRegionID, limit)
	return result[[]*sharedcall.SharedCall](args), args.Error(1)
}

type MockSettlementService struct {
	mock.Mock
}

func (m *MockSettlementService) RecordCompletedTrip(ctx context.Context, trip settlement.Trip) (*settlement_engine.TripResult, error) {
	args := m.Called(ctx, trip)
	return result[*settlement_engine.TripResult](args), args.Error(1)
}

func (m *MockSettlementService) RecordAdjustment(ctx context.Context, req settlement_engine.AdjustmentRequest) (*settlement.Record, error) {
	args := m.Called(ctx, req)
	return result[*settlement.Record](args), args.Error(1)
}

func (m *MockSettlementService) CloseSession(ctx context.Context, scope shared.Scope) (*settlement_engine.CloseResult, error) {
	args := m.Called(ctx, scope)
	return result[*settlement_engine.CloseResult](args), args.Error(1)
}

func (m *MockSettlementService) CurrentSession(ctx context.Context, scope shared.Scope) (*settlement.Session, error) {
	args := m.Called(ctx, scope)
	return result[*settlement.Session](args), args.Error(1)
}

func (m *MockSettlementService) SessionReport(ctx context.Context, scope shared.Scope, sessionID uuid.UUID) (*settlement.Report, error) {
	args := m.Called(ctx, scope, sessionID)
	return result[*settlement.Report](args), args.Error(1)
}

func (m *MockSettlementService) DateRangeReport(ctx context.Context, scope shared.Scope, from, to string) (*settlement.Report, error) {
	args := m.Called(ctx, scope, from, to)
	return result[*settlement.Report](args), args.Error(1)
}

func (m *MockSettlementService) AddOrIncrementCredit(ctx context.Context, officeID string, customer credit.Customer, amount int64, detail credit.Detail) (*credit.Account, error) {
	args := m.Called(ctx, officeID, customer, amount, detail)
	return result[*credit.Account](args), args.Error(1)
}

func (m *MockSettlementService) FindCreditAccount(ctx context.Context, officeID string, customer credit.Customer) (*credit.Account, error) {
	args := m.Called(ctx, officeID, customer)
	return result[*credit.Account](args), args.Error(1)
}

func (m *MockSettlementService) GetCreditAccount(ctx context.Context, accountID uuid.UUID) (*credit.Account, error) {
	args := m.Called(ctx, accountID)
	return result[*credit.Account](args), args.Error(1)
}

func (m *MockSettlementService) MarkCreditPaid(ctx context.Context, accountID uuid.UUID, amount int64) (*settlement_engine.PaymentResult, error) {
	args := m.Called(ctx, accountID, amount)
	return result[*settlement_engine.PaymentResult](args), args.Error(1)
}

type MockPointsService struct {
	mock.Mock
}

func (m *MockPointsService) Balance(ctx context.Context, officeID string) (*points.Balance, error) {
	args := m.Called(ctx, officeID)
	return result[*points.Balance](args), args.Error(1)
}

func (m *MockPointsService) Transfer(ctx context.Context, req settlement_engine.TransferRequest) (*points.Transfer, error) {
	args := m.Called(ctx, req)
	return result[*points.Transfer](args), args.Error(1)
}

func (m *MockPointsService) VerifyClosedSum(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPointsService) Journal(ctx context.Context, officeID string, page, perPage int) ([]*points.JournalEntry, int64, error) {
	args := m.Called(ctx, officeID, page, perPage)
	return result[[]*points.JournalEntry](args), args.Get(1).(int64), args.Error(2)
}
