package handler

import (
	"log/slog"
	"strings"

	"github.com/dispatch-ledger/internal/dispatch"
	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CallHandler handles the Dispatch operation group of one office
type CallHandler struct {
	dispatch DispatchService
	board    BoardView
	logger   *slog.Logger
}

// NewCallHandler creates a call handler. board may be nil when no event
// stream feeds the gateway.
func NewCallHandler(logger *slog.Logger, dispatch DispatchService, board BoardView) *CallHandler {
	return &CallHandler{
		dispatch: dispatch,
		board:    board,
		logger:   logger,
	}
}

func scopeParam(c *gin.Context) shared.Scope {
	return shared.Scope{RegionID: c.Param("regionId"), OfficeID: c.Param("officeId")}
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondBadRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func (h *CallHandler) Create(c *gin.Context) {
	var req CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	created, err := h.dispatch.Create(c.Request.Context(), call.NewCallParams{
		Scope:        scopeParam(c),
		CustomerName: req.CustomerName,
		PhoneNumber:  req.PhoneNumber,
		Departure:    req.Departure,
		Destination:  req.Destination,
		Fare:         req.Fare,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, created)
}

func (h *CallHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "callId")
	if !ok {
		return
	}
	found, err := h.dispatch.Get(c.Request.Context(), scopeParam(c), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, found)
}

func (h *CallHandler) List(c *gin.Context) {
	var q ListCallsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		RespondBadRequest(c, "Invalid query: "+err.Error())
		return
	}

	filter := call.ListFilter{Limit: q.Limit, Offset: q.Offset}
	for _, raw := range strings.Split(q.Status, ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			filter.Statuses = append(filter.Statuses, call.Status(strings.ToUpper(raw)))
		}
	}

	calls, err := h.dispatch.List(c.Request.Context(), scopeParam(c), filter)
	if err != nil {
		RespondError(c, err)
		return
	}
	if calls == nil {
		calls = []*call.Call{}
	}
	RespondOK(c, calls)
}

// Board returns the live summary of the office's non-terminal calls
func (h *CallHandler) Board(c *gin.Context) {
	if h.board == nil {
		RespondError(c, dispatch.ErrBoardStopped)
		return
	}
	summaries, err := h.board.Snapshot(c.Request.Context(), scopeParam(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	if summaries == nil {
		summaries = []dispatch.CallSummary{}
	}
	RespondOK(c, summaries)
}

// transition binds the common request and resolves the call reference
func (h *CallHandler) transition(c *gin.Context) (TransitionRequest, dispatch.CallRef, bool) {
	var req TransitionRequest
	id, ok := uuidParam(c, "callId")
	if !ok {
		return req, dispatch.CallRef{}, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return req, dispatch.CallRef{}, false
	}
	ref := dispatch.CallRef{
		Scope:    scopeParam(c),
		ID:       id,
		Expected: call.Status(strings.ToUpper(req.ExpectedStatus)),
	}
	return req, ref, true
}

func (h *CallHandler) respondCall(c *gin.Context, updated *call.Call, err error) {
	if err != nil {
		h.logger.Debug("Call transition refused", "path", c.Request.URL.Path, "error", err)
		RespondError(c, err)
		return
	}
	RespondOK(c, updated)
}

func (h *CallHandler) Assign(c *gin.Context) {
	req, ref, ok := h.transition(c)
	if !ok {
		return
	}
	updated, err := h.dispatch.Assign(c.Request.Context(), ref, req.WorkerID, req.WorkerName)
	h.respondCall(c, updated, err)
}

func (h *CallHandler) Accept(c *gin.Context) {
	req, ref, ok := h.transition(c)
	if !ok {
		return
	}
	updated, err := h.dispatch.Accept(c.Request.Context(), ref, req.WorkerID)
	h.respondCall(c, updated, err)
}

func (h *CallHandler) Start(c *gin.Context) {
	_, ref, ok := h.transition(c)
	if !ok {
		return
	}
	updated, err := h.dispatch.Start(c.Request.Context(), ref)
	h.respondCall(c, updated, err)
}

func (h *CallHandler) RequestSettlement(c *gin.Context) {
	id, ok := uuidParam(c, "callId")
	if !ok {
		return
	}
	var req SettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ref := dispatch.CallRef{Scope: scopeParam(c), ID: id, Expected: call.Status(strings.ToUpper(req.ExpectedStatus))}
	updated, err := h.dispatch.RequestSettlement(c.Request.Context(), ref, call.FareBreakdown{
		Method:       call.PaymentMethod(strings.ToUpper(string(req.PaymentMethod))),
		Fare:         req.Fare,
		CashAmount:   req.CashAmount,
		CardAmount:   req.CardAmount,
		CreditAmount: req.CreditAmount,
	})
	h.respondCall(c, updated, err)
}

func (h *CallHandler) Finalize(c *gin.Context) {
	_, ref, ok := h.transition(c)
	if !ok {
		return
	}
	result, err := h.dispatch.FinalizeSettlement(c.Request.Context(), ref)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, result)
}

func (h *CallHandler) Cancel(c *gin.Context) {
	req, ref, ok := h.transition(c)
	if !ok {
		return
	}
	updated, err := h.dispatch.Cancel(c.Request.Context(), ref, req.Reason)
	h.respondCall(c, updated, err)
}

func (h *CallHandler) Hold(c *gin.Context) {
	req, ref, ok := h.transition(c)
	if !ok {
		return
	}
	updated, err := h.dispatch.Hold(c.Request.Context(), ref, req.Reason)
	h.respondCall(c, updated, err)
}

func (h *CallHandler) Resume(c *gin.Context) {
	_, ref, ok := h.transition(c)
	if !ok {
		return
	}
	updated, err := h.dispatch.Resume(c.Request.Context(), ref)
	h.respondCall(c, updated, err)
}
