package settlement_engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dispatch-ledger/internal/config"
	"github.com/dispatch-ledger/internal/data"
	"github.com/dispatch-ledger/internal/data/memory"
	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/credit"
	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gangnam = shared.Scope{RegionID: "seoul", OfficeID: "gangnam"}

func testConfig() config.DispatchConfig {
	return config.DispatchConfig{
		StoreDriver:        config.StoreDriverMemory,
		PointRatioPercent:  10,
		RetryMaxAttempts:   3,
		RetryBaseDelay:     time.Millisecond,
		RetryMaxDelay:      10 * time.Millisecond,
		SettlementTimezone: "Asia/Seoul",
		PhoneDefaultRegion: "KR",
	}
}

func newTestEngine(t *testing.T) (*Engine, data.Stores) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stores := memory.NewStore(logger, time.Second).Stores()
	return NewEngine(logger, stores, nil, testConfig()), stores
}

func cashTrip(callID, driver string, fare int64) settlement.Trip {
	return settlement.Trip{
		CallID:      callID,
		Scope:       gangnam,
		DriverName:  driver,
		Departure:   "Gangnam",
		Destination: "Jamsil",
		Breakdown:   call.FareBreakdown{Method: call.PaymentCash, Fare: fare},
		CompletedAt: time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC),
	}
}

func TestEngine_RecordCompletedTrip(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	first, err := engine.RecordCompletedTrip(ctx, cashTrip("call-1", "Kim", 30000))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	require.NotNil(t, first.Session)
	assert.Equal(t, 1, first.Session.TotalTrips)
	assert.Equal(t, int64(30000), first.Session.TotalFare)
	assert.Equal(t, "2026-03-02", first.Record.WorkDate)
	assert.False(t, first.Record.IsFinalized)

	again, err := engine.RecordCompletedTrip(ctx, cashTrip("call-1", "Kim", 30000))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Record.ID, again.Record.ID)

	session, err := engine.CurrentSession(ctx, gangnam)
	require.NoError(t, err)
	assert.Equal(t, 1, session.TotalTrips)
}

func TestEngine_RecordCompletedTrip_OtherOfficeIsFinal(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	_, err := engine.RecordCompletedTrip(ctx, cashTrip("call-x", "Kim", 30000))
	require.NoError(t, err)

	trip := cashTrip("call-x", "Park", 30000)
	trip.Scope = shared.Scope{RegionID: "seoul", OfficeID: "mapo"}
	_, err = engine.RecordCompletedTrip(ctx, trip)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.False(t, shared.IsRetryable(err))

	session, err := engine.CurrentSession(ctx, gangnam)
	require.NoError(t, err)
	assert.Equal(t, 1, session.TotalTrips)
}

func TestEngine_RecordCompletedTrip_FareMismatch(t *testing.T) {
	engine, _ := newTestEngine(t)
	trip := cashTrip("call-1", "Kim", 30000)
	trip.Breakdown.CashAmount = 20000
	trip.Breakdown.CardAmount = 5000

	_, err := engine.RecordCompletedTrip(context.Background(), trip)
	assert.ErrorIs(t, err, shared.ErrFareMismatch)
}

func TestEngine_CloseSession(t *testing.T) {
	ctx := context.Background()
	engine, stores := newTestEngine(t)

	for i, fare := range []int64{30000, 12000, 8000} {
		_, err := engine.RecordCompletedTrip(ctx, cashTrip(fmt.Sprintf("call-%d", i), "Kim", fare))
		require.NoError(t, err)
	}

	result, err := engine.CloseSession(ctx, gangnam)
	require.NoError(t, err)
	assert.Equal(t, settlement.SessionClosed, result.Closed.Status)
	assert.Equal(t, int64(3), result.Finalized)
	assert.Equal(t, settlement.SessionOpen, result.Next.Status)

	records, err := stores.Records.ListBySession(ctx, result.Closed.ID)
	require.NoError(t, err)
	var sum int64
	for _, r := range records {
		assert.True(t, r.IsFinalized)
		sum += r.Fare
	}
	assert.Equal(t, result.Closed.TotalFare, sum)
	assert.Equal(t, result.Closed.TotalTrips, len(records))

	report, err := engine.SessionReport(ctx, gangnam, result.Closed.ID)
	require.NoError(t, err)
	assert.True(t, report.Reconciled)
	assert.Equal(t, int64(50000), report.ByDriver["Kim"].Fare)

	_, err = engine.CloseSession(ctx, gangnam)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	records, err = stores.Records.ListBySession(ctx, result.Next.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEngine_CloseSessionWithoutSession(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.CloseSession(context.Background(), gangnam)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestEngine_TripsAfterCloseGoToNextSession(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	_, err := engine.RecordCompletedTrip(ctx, cashTrip("call-1", "Kim", 10000))
	require.NoError(t, err)
	closed, err := engine.CloseSession(ctx, gangnam)
	require.NoError(t, err)

	next, err := engine.RecordCompletedTrip(ctx, cashTrip("call-2", "Lee", 20000))
	require.NoError(t, err)
	assert.Equal(t, closed.Next.ID, next.Session.ID)
	assert.Equal(t, int64(20000), next.Session.TotalFare)
}

func TestEngine_RecordAdjustment(t *testing.T) {
	ctx := context.Background()
	engine, stores := newTestEngine(t)

	_, err := engine.RecordCompletedTrip(ctx, cashTrip("call-1", "Kim", 30000))
	require.NoError(t, err)
	closed, err := engine.CloseSession(ctx, gangnam)
	require.NoError(t, err)

	adj, err := engine.RecordAdjustment(ctx, AdjustmentRequest{Scope: gangnam, CallID: "call-1", FareDelta: -5000, Reason: "toll refund"})
	require.NoError(t, err)
	assert.Equal(t, settlement.KindAdjustment, adj.Kind)
	require.NotNil(t, adj.SessionID)
	assert.Equal(t, closed.Next.ID, *adj.SessionID)

	original, err := stores.Records.GetTripByCallID(ctx, "gangnam", "call-1")
	require.NoError(t, err)
	assert.Equal(t, int64(30000), original.Fare)
	assert.True(t, original.IsFinalized)

	current, err := engine.CurrentSession(ctx, gangnam)
	require.NoError(t, err)
	assert.Equal(t, 0, current.TotalTrips)
	assert.Equal(t, int64(-5000), current.TotalFare)

	_, err = engine.RecordAdjustment(ctx, AdjustmentRequest{Scope: gangnam, CallID: "missing", FareDelta: 100, Reason: "x"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEngine_CreditTripPostsCredit(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	trip := cashTrip("call-1", "Kim", 30000)
	trip.CustomerPhone = "010-1234-5678"
	trip.Breakdown = call.FareBreakdown{Method: call.PaymentCredit, Fare: 30000, CashAmount: 10000, CreditAmount: 20000}

	_, err := engine.RecordCompletedTrip(ctx, trip)
	require.NoError(t, err)

	account, err := engine.FindCreditAccount(ctx, "gangnam", credit.Customer{Phone: "+82 10 1234 5678"})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), account.TotalOutstanding)
	require.Len(t, account.Entries, 1)
	assert.Equal(t, "call-1", account.Entries[0].CallID)
}

func TestEngine_ConcurrentCreditPostingsShareOneAccount(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.AddOrIncrementCredit(ctx, "gangnam", credit.Customer{Phone: "010-1234-5678"}, 1000, credit.Detail{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	account, err := engine.FindCreditAccount(ctx, "gangnam", credit.Customer{Phone: "01012345678"})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), account.TotalOutstanding)
	assert.Len(t, account.Entries, 10)
	assert.True(t, account.Consistent())
}

func TestEngine_MarkCreditPaid(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	customer := credit.Customer{Name: "Kim Min-su"}

	_, err := engine.AddOrIncrementCredit(ctx, "gangnam", customer, 10000, credit.Detail{Departure: "A", Destination: "B"})
	require.NoError(t, err)
	account, err := engine.AddOrIncrementCredit(ctx, "gangnam", customer, 5000, credit.Detail{Departure: "C", Destination: "D"})
	require.NoError(t, err)

	tests := []struct {
		name            string
		amount          int64
		wantApplied     int64
		wantOutstanding int64
	}{
		{"partial", 12000, 12000, 3000},
		{"overpayment capped", 50000, 3000, 0},
		{"nothing left", 1000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.MarkCreditPaid(ctx, account.ID, tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, result.Applied)
			assert.Equal(t, tt.wantOutstanding, result.Account.TotalOutstanding)
			assert.True(t, result.Account.Consistent())
		})
	}

	_, err = engine.MarkCreditPaid(ctx, account.ID, 0)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestEngine_TransferKeepsClosedSum(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	_, err := engine.Transfer(ctx, TransferRequest{FromOfficeID: "suwon", ToOfficeID: "gangnam", Amount: 5000})
	require.NoError(t, err)
	_, err = engine.Transfer(ctx, TransferRequest{FromOfficeID: "gangnam", ToOfficeID: "mapo", Amount: 1200, Reason: "fuel"})
	require.NoError(t, err)

	gangnamBalance, err := engine.Balance(ctx, "gangnam")
	require.NoError(t, err)
	assert.Equal(t, int64(3800), gangnamBalance.Balance)

	sum, err := engine.VerifyClosedSum(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum)

	_, err = engine.Transfer(ctx, TransferRequest{FromOfficeID: "gangnam", ToOfficeID: "gangnam", Amount: 1})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = engine.Journal(ctx, "gangnam", 1, 10)
	assert.ErrorIs(t, err, ErrJournalUnavailable)
}

func TestEngine_DateRangeReport(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	_, err := engine.RecordCompletedTrip(ctx, cashTrip("call-1", "Kim", 30000))
	require.NoError(t, err)

	report, err := engine.DateRangeReport(ctx, gangnam, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Totals.Trips)
	assert.Equal(t, []string{"2026-03-02"}, report.Dates)

	_, err = engine.DateRangeReport(ctx, gangnam, "2026-03-31", "2026-03-01")
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = engine.DateRangeReport(ctx, gangnam, "March", "2026-03-01")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
