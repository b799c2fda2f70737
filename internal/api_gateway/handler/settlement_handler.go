package handler

import (
	"log/slog"
	"net/http"

	"github.com/dispatch-ledger/internal/domain/credit"
	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/settlement_engine"
	"github.com/gin-gonic/gin"
)

// SettlementHandler handles trips, sessions, reports and customer credit
type SettlementHandler struct {
	settlement SettlementService
	logger     *slog.Logger
}

func NewSettlementHandler(logger *slog.Logger, settlement SettlementService) *SettlementHandler {
	return &SettlementHandler{
		settlement: settlement,
		logger:     logger,
	}
}

// RecordTrip is the upload target of worker devices. The office in the path
// wins over any scope in the body. A trip already recorded answers 200 with
// duplicate=true so offline clients can mark it synced.
func (h *SettlementHandler) RecordTrip(c *gin.Context) {
	var trip settlement.Trip
	if err := c.ShouldBindJSON(&trip); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	trip.Scope = scopeParam(c)

	result, err := h.settlement.RecordCompletedTrip(c.Request.Context(), trip)
	if err != nil {
		RespondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	RespondWithData(c, status, result)
}

func (h *SettlementHandler) RecordAdjustment(c *gin.Context) {
	var req RecordAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	record, err := h.settlement.RecordAdjustment(c.Request.Context(), settlement_engine.AdjustmentRequest{
		Scope:     scopeParam(c),
		CallID:    req.CallID,
		FareDelta: req.FareDelta,
		Reason:    req.Reason,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, record)
}

func (h *SettlementHandler) CloseSession(c *gin.Context) {
	result, err := h.settlement.CloseSession(c.Request.Context(), scopeParam(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, result)
}

func (h *SettlementHandler) CurrentSession(c *gin.Context) {
	session, err := h.settlement.CurrentSession(c.Request.Context(), scopeParam(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, session)
}

func (h *SettlementHandler) SessionReport(c *gin.Context) {
	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return
	}
	report, err := h.settlement.SessionReport(c.Request.Context(), scopeParam(c), sessionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, report)
}

func (h *SettlementHandler) DateRangeReport(c *gin.Context) {
	var q DateRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		RespondBadRequest(c, "from and to are required (YYYY-MM-DD)")
		return
	}
	report, err := h.settlement.DateRangeReport(c.Request.Context(), scopeParam(c), q.From, q.To)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, report)
}

func (h *SettlementHandler) PostCredit(c *gin.Context) {
	var req CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	account, err := h.settlement.AddOrIncrementCredit(c.Request.Context(),
		c.Param("officeId"),
		credit.Customer{Phone: req.CustomerPhone, Name: req.CustomerName},
		req.Amount,
		credit.Detail{CallID: req.CallID, Date: req.Date, Departure: req.Departure, Destination: req.Destination},
	)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, account)
}

func (h *SettlementHandler) LookupCredit(c *gin.Context) {
	var q CreditLookupQuery
	if err := c.ShouldBindQuery(&q); err != nil || (q.Phone == "" && q.Name == "") {
		RespondBadRequest(c, "phone or name is required")
		return
	}
	account, err := h.settlement.FindCreditAccount(c.Request.Context(), c.Param("officeId"), credit.Customer{Phone: q.Phone, Name: q.Name})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, account)
}

func (h *SettlementHandler) GetCredit(c *gin.Context) {
	id, ok := uuidParam(c, "accountId")
	if !ok {
		return
	}
	account, err := h.settlement.GetCreditAccount(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, account)
}

func (h *SettlementHandler) PayCredit(c *gin.Context) {
	id, ok := uuidParam(c, "accountId")
	if !ok {
		return
	}
	var req CreditPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	result, err := h.settlement.MarkCreditPaid(c.Request.Context(), id, req.Amount)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, result)
}
