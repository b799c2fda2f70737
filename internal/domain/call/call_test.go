package call

import (
	"testing"
	"time"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCall(t *testing.T) *Call {
	t.Helper()
	c, err := NewCall(NewCallParams{
		Scope:        shared.Scope{RegionID: "seoul", OfficeID: "gangnam"},
		CustomerName: "Kim",
		PhoneNumber:  "010-1234-5678",
		Departure:    "Gangnam Station",
		Destination:  "Incheon Airport",
		Fare:         30000,
	}, time.Now())
	require.NoError(t, err)
	return c
}

func TestNewCall(t *testing.T) {
	t.Run("SuccessfulCreation", func(t *testing.T) {
		c := newTestCall(t)
		assert.Equal(t, StatusWaiting, c.Status)
		assert.Equal(t, 1, c.Version)
		assert.Equal(t, "region/seoul/office/gangnam/calls/"+c.ID.String(), c.Path())
	})

	t.Run("MissingDeparture", func(t *testing.T) {
		_, err := NewCall(NewCallParams{
			Scope:       shared.Scope{RegionID: "seoul", OfficeID: "gangnam"},
			Destination: "Airport",
		}, time.Now())
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("MissingScope", func(t *testing.T) {
		_, err := NewCall(NewCallParams{Departure: "a", Destination: "b"}, time.Now())
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestCall_HappyPath(t *testing.T) {
	c := newTestCall(t)
	now := time.Now()

	require.NoError(t, c.Assign("driver-1", "Park", now))
	assert.Equal(t, StatusAssigned, c.Status)
	assert.Equal(t, "driver-1", c.AssignedWorkerID)

	require.NoError(t, c.Accept("driver-1", now))
	require.NoError(t, c.Start(now))
	require.NoError(t, c.RequestSettlement(FareBreakdown{
		Method:     PaymentCash,
		CashAmount: 20000,
		CardAmount: 10000,
	}, now))
	assert.Equal(t, StatusAwaitingSettlement, c.Status)
	assert.Equal(t, int64(20000), c.CashAmount)

	require.NoError(t, c.FinalizeSettlement(now))
	assert.Equal(t, StatusCompleted, c.Status)
	require.NotNil(t, c.CompletedAt)
	assert.Equal(t, 6, c.Version)
}

func TestCall_Assign(t *testing.T) {
	t.Run("NotWaiting", func(t *testing.T) {
		c := newTestCall(t)
		require.NoError(t, c.Assign("driver-1", "", time.Now()))

		err := c.Assign("driver-2", "", time.Now())
		assert.ErrorIs(t, err, shared.ErrInvalidTransition)
		assert.Equal(t, "driver-1", c.AssignedWorkerID)
	})

	t.Run("EmptyWorker", func(t *testing.T) {
		c := newTestCall(t)
		assert.ErrorIs(t, c.Assign("", "", time.Now()), ErrEmptyWorkerID)
	})
}

func TestCall_AcceptByOtherWorker(t *testing.T) {
	c := newTestCall(t)
	require.NoError(t, c.Assign("driver-1", "", time.Now()))

	err := c.Accept("driver-2", time.Now())
	assert.ErrorIs(t, err, ErrNotAssignedWorker)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	assert.Equal(t, StatusAssigned, c.Status)
}

func TestCall_RequestSettlement(t *testing.T) {
	tests := []struct {
		name      string
		breakdown FareBreakdown
		wantErr   error
		wantCash  int64
		wantFare  int64
	}{
		{
			name:      "breakdown matches fare",
			breakdown: FareBreakdown{Method: PaymentCash, CashAmount: 20000, CardAmount: 10000},
			wantCash:  20000,
			wantFare:  30000,
		},
		{
			name:      "breakdown does not sum to fare",
			breakdown: FareBreakdown{Method: PaymentCash, CashAmount: 20000, CardAmount: 5000},
			wantErr:   shared.ErrFareMismatch,
		},
		{
			name:      "no breakdown infers cash bucket",
			breakdown: FareBreakdown{Method: PaymentCash},
			wantCash:  30000,
			wantFare:  30000,
		},
		{
			name:      "restated fare equal to dispatched fare",
			breakdown: FareBreakdown{Method: PaymentCash, Fare: 30000, CashAmount: 30000},
			wantCash:  30000,
			wantFare:  30000,
		},
		{
			name:      "restated fare cannot hide a short breakdown",
			breakdown: FareBreakdown{Method: PaymentCash, Fare: 25000, CashAmount: 20000, CardAmount: 5000},
			wantErr:   shared.ErrFareMismatch,
		},
		{
			name:      "unknown method",
			breakdown: FareBreakdown{Method: "BITCOIN"},
			wantErr:   shared.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCall(t)
			now := time.Now()
			require.NoError(t, c.Assign("d", "", now))
			require.NoError(t, c.Accept("d", now))
			require.NoError(t, c.Start(now))

			err := c.RequestSettlement(tt.breakdown, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, StatusInProgress, c.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCash, c.CashAmount)
			assert.Equal(t, tt.wantFare, c.Fare)
		})
	}
}

func TestCall_Cancel(t *testing.T) {
	c := newTestCall(t)
	require.NoError(t, c.Cancel("customer no-show", time.Now()))
	assert.Equal(t, StatusCanceled, c.Status)
	version := c.Version

	require.NoError(t, c.Cancel("again", time.Now()))
	assert.Equal(t, version, c.Version)
	assert.Equal(t, "customer no-show", c.StatusReason)

	assert.ErrorIs(t, c.Assign("d", "", time.Now()), shared.ErrInvalidTransition)
}

func TestCall_CancelCompleted(t *testing.T) {
	c := newTestCall(t)
	c.Status = StatusCompleted
	assert.ErrorIs(t, c.Cancel("late", time.Now()), shared.ErrInvalidTransition)
}

func TestCall_HoldAndResume(t *testing.T) {
	c := newTestCall(t)
	now := time.Now()
	require.NoError(t, c.Assign("d", "Lee", now))
	require.NoError(t, c.Hold("vehicle issue", now))
	assert.Equal(t, StatusHold, c.Status)

	require.NoError(t, c.Resume(now))
	assert.Equal(t, StatusWaiting, c.Status)
	assert.Empty(t, c.AssignedWorkerID)
	assert.Empty(t, c.StatusReason)
}
