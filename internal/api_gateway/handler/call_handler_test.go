package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/dispatch-ledger/internal/dispatch"
	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var gangnam = shared.Scope{RegionID: "seoul", OfficeID: "gangnam"}

const callsPath = "/api/v1/regions/seoul/offices/gangnam/calls"

func newCallRouter(svc DispatchService, board BoardView) *gin.Engine {
	h := NewCallHandler(newTestLogger(), svc, board)
	r := newTestRouter()
	calls := r.Group("/api/v1/regions/:regionId/offices/:officeId/calls")
	calls.POST("", h.Create)
	calls.GET("", h.List)
	calls.GET("/:callId", h.Get)
	calls.POST("/:callId/assign", h.Assign)
	calls.POST("/:callId/accept", h.Accept)
	calls.POST("/:callId/settlement-request", h.RequestSettlement)
	calls.POST("/:callId/finalize", h.Finalize)
	calls.POST("/:callId/cancel", h.Cancel)
	r.GET("/api/v1/regions/:regionId/offices/:officeId/board", h.Board)
	return r
}

func TestCallHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		setupMocks func(m *MockDispatchService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "created in path scope",
			body: CreateCallRequest{Departure: "Gangnam stn", Destination: "Yeoksam", Fare: 15000, PhoneNumber: "010-1234-5678"},
			setupMocks: func(m *MockDispatchService) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(p call.NewCallParams) bool {
					return p.Scope == gangnam && p.Fare == 15000 && p.Departure == "Gangnam stn"
				})).Return(&call.Call{ID: uuid.New(), RegionID: "seoul", OfficeID: "gangnam", Status: call.StatusWaiting}, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing destination",
			body:       map[string]any{"departure": "Gangnam stn", "fare": 15000},
			setupMocks: func(m *MockDispatchService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name: "domain validation",
			body: CreateCallRequest{Departure: "a", Destination: "b"},
			setupMocks: func(m *MockDispatchService) {
				m.On("Create", mock.Anything, mock.Anything).Return(nil, shared.ValidationError{Field: "region_id", Message: "is required"}).Once()
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockDispatchService)
			tt.setupMocks(svc)

			rr, env := perform(t, newCallRouter(svc, nil), http.MethodPost, callsPath, tt.body)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.wantCode, env.Error.Code)
			} else {
				assert.True(t, env.Success)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestCallHandler_List(t *testing.T) {
	svc := new(MockDispatchService)
	svc.On("List", mock.Anything, gangnam, call.ListFilter{
		Statuses: []call.Status{call.StatusWaiting, call.StatusAssigned},
		Limit:    10,
	}).Return(nil, nil).Once()

	rr, env := perform(t, newCallRouter(svc, nil), http.MethodGet, callsPath+"?status=waiting,ASSIGNED&limit=10", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
	svc.AssertExpectations(t)

	rr, _ = perform(t, newCallRouter(svc, nil), http.MethodGet, callsPath+"?limit=500", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCallHandler_Transitions(t *testing.T) {
	id := uuid.New()
	path := callsPath + "/" + id.String()
	ref := func(expected call.Status) dispatch.CallRef {
		return dispatch.CallRef{Scope: gangnam, ID: id, Expected: expected}
	}

	tests := []struct {
		name          string
		action        string
		body          any
		setupMocks    func(m *MockDispatchService)
		wantStatus    int
		wantCode      string
		wantRetryable bool
	}{
		{
			name:   "assign",
			action: "/assign",
			body:   TransitionRequest{ExpectedStatus: "waiting", WorkerID: "w1", WorkerName: "Kim"},
			setupMocks: func(m *MockDispatchService) {
				m.On("Assign", mock.Anything, ref(call.StatusWaiting), "w1", "Kim").Return(&call.Call{ID: id, Status: call.StatusAssigned}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "stale accept",
			action: "/accept",
			body:   TransitionRequest{ExpectedStatus: "ASSIGNED", WorkerID: "w1"},
			setupMocks: func(m *MockDispatchService) {
				m.On("Accept", mock.Anything, ref(call.StatusAssigned), "w1").
					Return(nil, shared.StaleStateError{ID: id.String(), Expected: "ASSIGNED", Actual: "CANCELED"}).Once()
			},
			wantStatus:    http.StatusConflict,
			wantCode:      "STALE_STATE",
			wantRetryable: true,
		},
		{
			name:   "fare mismatch",
			action: "/settlement-request",
			body:   SettlementRequest{ExpectedStatus: "IN_PROGRESS", PaymentMethod: "cash", CashAmount: 5000, CardAmount: 4000},
			setupMocks: func(m *MockDispatchService) {
				m.On("RequestSettlement", mock.Anything, ref(call.StatusInProgress), call.FareBreakdown{
					Method: call.PaymentCash, CashAmount: 5000, CardAmount: 4000,
				}).Return(nil, shared.FareMismatchError{Fare: 10000, Total: 9000}).Once()
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "FARE_MISMATCH",
		},
		{
			name:   "finalize",
			action: "/finalize",
			body:   TransitionRequest{ExpectedStatus: "AWAITING_SETTLEMENT"},
			setupMocks: func(m *MockDispatchService) {
				m.On("FinalizeSettlement", mock.Anything, ref(call.StatusAwaitingSettlement)).
					Return(&dispatch.FinalizeResult{Call: &call.Call{ID: id, Status: call.StatusCompleted}}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "invalid transition",
			action: "/finalize",
			body:   TransitionRequest{ExpectedStatus: "WAITING"},
			setupMocks: func(m *MockDispatchService) {
				m.On("FinalizeSettlement", mock.Anything, ref(call.StatusWaiting)).
					Return(nil, shared.InvalidTransitionError{Entity: "call", ID: id.String(), From: "WAITING", To: "COMPLETED"}).Once()
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_TRANSITION",
		},
		{
			name:   "aborted cancel",
			action: "/cancel",
			body:   TransitionRequest{ExpectedStatus: "WAITING", Reason: "customer left"},
			setupMocks: func(m *MockDispatchService) {
				m.On("Cancel", mock.Anything, ref(call.StatusWaiting), "customer left").
					Return(nil, shared.AbortedError{Op: "dispatch.cancel", Err: errors.New("deadlock")}).Once()
			},
			wantStatus:    http.StatusServiceUnavailable,
			wantCode:      "TRANSACTION_ABORTED",
			wantRetryable: true,
		},
		{
			name:       "missing expected status",
			action:     "/cancel",
			body:       map[string]string{"reason": "x"},
			setupMocks: func(m *MockDispatchService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockDispatchService)
			tt.setupMocks(svc)

			rr, env := perform(t, newCallRouter(svc, nil), http.MethodPost, path+tt.action, tt.body)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.wantCode, env.Error.Code)
				assert.Equal(t, tt.wantRetryable, env.Error.Retryable)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestCallHandler_InvalidCallID(t *testing.T) {
	rr, env := perform(t, newCallRouter(new(MockDispatchService), nil), http.MethodGet, callsPath+"/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestCallHandler_Board(t *testing.T) {
	t.Run("snapshot", func(t *testing.T) {
		board := new(MockBoardView)
		summaries := []dispatch.CallSummary{{ID: uuid.NewString(), OfficeID: "gangnam", Status: call.StatusWaiting, Fare: 12000}}
		board.On("Snapshot", mock.Anything, gangnam).Return(summaries, nil).Once()

		rr, env := perform(t, newCallRouter(new(MockDispatchService), board), http.MethodGet, "/api/v1/regions/seoul/offices/gangnam/board", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var got []dispatch.CallSummary
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, summaries[0].ID, got[0].ID)
	})

	t.Run("no board", func(t *testing.T) {
		rr, env := perform(t, newCallRouter(new(MockDispatchService), nil), http.MethodGet, "/api/v1/regions/seoul/offices/gangnam/board", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "BOARD_UNAVAILABLE", env.Error.Code)
	})
}
