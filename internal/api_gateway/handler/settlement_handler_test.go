package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/credit"
	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/settlement_engine"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const officePath = "/api/v1/regions/seoul/offices/gangnam"

func newSettlementRouter(svc SettlementService) *gin.Engine {
	h := NewSettlementHandler(newTestLogger(), svc)
	r := newTestRouter()
	office := r.Group("/api/v1/regions/:regionId/offices/:officeId")
	office.POST("/trips", h.RecordTrip)
	office.POST("/adjustments", h.RecordAdjustment)
	office.POST("/sessions/close", h.CloseSession)
	office.GET("/reports", h.DateRangeReport)
	office.POST("/credits", h.PostCredit)
	office.GET("/credits", h.LookupCredit)
	office.POST("/credits/:accountId/payments", h.PayCredit)
	return r
}

func TestSettlementHandler_RecordTrip(t *testing.T) {
	trip := settlement.Trip{
		CallID:      uuid.NewString(),
		Scope:       shared.Scope{RegionID: "busan", OfficeID: "somewhere-else"},
		DriverName:  "Park",
		Breakdown:   call.FareBreakdown{Method: call.PaymentCash, Fare: 20000, CashAmount: 20000},
		CompletedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	pathScope := mock.MatchedBy(func(got settlement.Trip) bool {
		return got.Scope == gangnam && got.CallID == trip.CallID
	})

	t.Run("recorded under the path office", func(t *testing.T) {
		svc := new(MockSettlementService)
		svc.On("RecordCompletedTrip", mock.Anything, pathScope).
			Return(&settlement_engine.TripResult{Record: &settlement.Record{CallID: trip.CallID}}, nil).Once()

		rr, env := perform(t, newSettlementRouter(svc), http.MethodPost, officePath+"/trips", trip)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.True(t, env.Success)
		svc.AssertExpectations(t)
	})

	t.Run("duplicate upload", func(t *testing.T) {
		svc := new(MockSettlementService)
		svc.On("RecordCompletedTrip", mock.Anything, pathScope).
			Return(&settlement_engine.TripResult{Record: &settlement.Record{CallID: trip.CallID}, Duplicate: true}, nil).Once()

		rr, env := perform(t, newSettlementRouter(svc), http.MethodPost, officePath+"/trips", trip)

		assert.Equal(t, http.StatusOK, rr.Code)
		var got settlement_engine.TripResult
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.True(t, got.Duplicate)
	})

	t.Run("malformed body", func(t *testing.T) {
		rr, env := perform(t, newSettlementRouter(new(MockSettlementService)), http.MethodPost, officePath+"/trips", "{not json")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "BAD_REQUEST", env.Error.Code)
	})
}

func TestSettlementHandler_CloseSession(t *testing.T) {
	svc := new(MockSettlementService)
	svc.On("CloseSession", mock.Anything, gangnam).
		Return(nil, shared.InvalidTransitionError{Entity: "session", ID: "none", From: "OPEN", To: "CLOSED"}).Once()

	rr, env := perform(t, newSettlementRouter(svc), http.MethodPost, officePath+"/sessions/close", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
	svc.AssertExpectations(t)
}

func TestSettlementHandler_DateRangeReport(t *testing.T) {
	svc := new(MockSettlementService)
	svc.On("DateRangeReport", mock.Anything, gangnam, "2026-03-01", "2026-03-31").
		Return(&settlement.Report{}, nil).Once()

	rr, _ := perform(t, newSettlementRouter(svc), http.MethodGet, officePath+"/reports?from=2026-03-01&to=2026-03-31", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, env := perform(t, newSettlementRouter(svc), http.MethodGet, officePath+"/reports?from=2026-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
	svc.AssertExpectations(t)
}

func TestSettlementHandler_Credit(t *testing.T) {
	t.Run("post", func(t *testing.T) {
		svc := new(MockSettlementService)
		svc.On("AddOrIncrementCredit", mock.Anything, "gangnam",
			credit.Customer{Phone: "010-1234-5678", Name: "Choi"}, int64(15000),
			credit.Detail{CallID: "c1", Date: "2026-03-01"},
		).Return(&credit.Account{ID: uuid.New(), OfficeID: "gangnam", TotalOutstanding: 15000}, nil).Once()

		rr, _ := perform(t, newSettlementRouter(svc), http.MethodPost, officePath+"/credits", CreditRequest{
			CustomerPhone: "010-1234-5678",
			CustomerName:  "Choi",
			Amount:        15000,
			CallID:        "c1",
			Date:          "2026-03-01",
		})

		assert.Equal(t, http.StatusCreated, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("lookup needs a key", func(t *testing.T) {
		svc := new(MockSettlementService)
		rr, env := perform(t, newSettlementRouter(svc), http.MethodGet, officePath+"/credits", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "BAD_REQUEST", env.Error.Code)
		svc.AssertNotCalled(t, "FindCreditAccount", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("pay", func(t *testing.T) {
		id := uuid.New()
		svc := new(MockSettlementService)
		svc.On("MarkCreditPaid", mock.Anything, id, int64(5000)).
			Return(&settlement_engine.PaymentResult{Account: &credit.Account{ID: id, TotalOutstanding: 10000}, Applied: 5000}, nil).Once()

		rr, env := perform(t, newSettlementRouter(svc), http.MethodPost, officePath+"/credits/"+id.String()+"/payments", CreditPaymentRequest{Amount: 5000})

		assert.Equal(t, http.StatusOK, rr.Code)
		var got settlement_engine.PaymentResult
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, int64(5000), got.Applied)
		svc.AssertExpectations(t)
	})
}
