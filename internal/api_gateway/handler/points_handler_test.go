package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/settlement_engine"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newPointsRouter(svc PointsService) *gin.Engine {
	h := NewPointsHandler(newTestLogger(), svc)
	r := newTestRouter()
	g := r.Group("/api/v1/points")
	g.GET("/closed-sum", h.ClosedSum)
	g.POST("/transfers", h.Transfer)
	g.GET("/offices/:officeId", h.Balance)
	g.GET("/offices/:officeId/journal", h.Journal)
	return r
}

func TestPointsHandler_Journal(t *testing.T) {
	t.Run("paginated", func(t *testing.T) {
		svc := new(MockPointsService)
		entries := []*points.JournalEntry{
			{EventID: "e1", OfficeID: "gangnam", Delta: -3000},
			{EventID: "e2", OfficeID: "gangnam", Delta: 1000},
		}
		svc.On("Journal", mock.Anything, "gangnam", 2, 2).Return(entries, int64(5), nil).Once()

		rr, env := perform(t, newPointsRouter(svc), http.MethodGet, "/api/v1/points/offices/gangnam/journal?page=2&per_page=2", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, env.Meta.Pagination)
		assert.Equal(t, 3, env.Meta.Pagination.TotalPages)
		assert.Equal(t, 5, env.Meta.Pagination.TotalItems)
		var got []*points.JournalEntry
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Len(t, got, 2)
		svc.AssertExpectations(t)
	})

	t.Run("journal not configured", func(t *testing.T) {
		svc := new(MockPointsService)
		svc.On("Journal", mock.Anything, "gangnam", 1, 20).Return(nil, int64(0), settlement_engine.ErrJournalUnavailable).Once()

		rr, env := perform(t, newPointsRouter(svc), http.MethodGet, "/api/v1/points/offices/gangnam/journal", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "JOURNAL_UNAVAILABLE", env.Error.Code)
		assert.False(t, env.Error.Retryable)
	})

	t.Run("page size over the limit", func(t *testing.T) {
		rr, _ := perform(t, newPointsRouter(new(MockPointsService)), http.MethodGet, "/api/v1/points/offices/gangnam/journal?per_page=500", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestPointsHandler_Transfer(t *testing.T) {
	svc := new(MockPointsService)
	req := settlement_engine.TransferRequest{FromOfficeID: "gangnam", ToOfficeID: "haeundae", Amount: 3000, Reason: "manual"}
	svc.On("Transfer", mock.Anything, req).
		Return(&points.Transfer{ID: uuid.New(), FromOfficeID: "gangnam", ToOfficeID: "haeundae", Amount: 3000}, nil).Once()

	rr, env := perform(t, newPointsRouter(svc), http.MethodPost, "/api/v1/points/transfers", PointTransferRequest{
		FromOfficeID: "gangnam",
		ToOfficeID:   "haeundae",
		Amount:       3000,
		Reason:       "manual",
	})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, env.Success)
	svc.AssertExpectations(t)
}

func TestPointsHandler_ClosedSum(t *testing.T) {
	tests := []struct {
		name         string
		sum          int64
		err          error
		wantStatus   int
		wantBalanced bool
	}{
		{name: "balanced", sum: 0, wantStatus: http.StatusOK, wantBalanced: true},
		{name: "drifted", sum: 700, wantStatus: http.StatusOK, wantBalanced: false},
		{name: "store failure", err: fmt.Errorf("query balances: boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockPointsService)
			svc.On("VerifyClosedSum", mock.Anything).Return(tt.sum, tt.err).Once()

			rr, env := perform(t, newPointsRouter(svc), http.MethodGet, "/api/v1/points/closed-sum", nil)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.err == nil {
				var got ClosedSumResponse
				require.NoError(t, json.Unmarshal(env.Data, &got))
				assert.Equal(t, tt.sum, got.Sum)
				assert.Equal(t, tt.wantBalanced, got.Balanced)
			}
		})
	}
}
