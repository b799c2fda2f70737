package handler

import (
	"log/slog"
	"time"

	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/settlement_engine"
	"github.com/gin-gonic/gin"
)

// PointsHandler handles office point balances and the journal
type PointsHandler struct {
	points PointsService
	logger *slog.Logger
}

func NewPointsHandler(logger *slog.Logger, points PointsService) *PointsHandler {
	return &PointsHandler{
		points: points,
		logger: logger,
	}
}

func (h *PointsHandler) Balance(c *gin.Context) {
	balance, err := h.points.Balance(c.Request.Context(), c.Param("officeId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, balance)
}

func (h *PointsHandler) Journal(c *gin.Context) {
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	entries, total, err := h.points.Journal(c.Request.Context(), c.Param("officeId"), pagination.Page, pagination.PerPage)
	if err != nil {
		RespondError(c, err)
		return
	}
	if entries == nil {
		entries = []*points.JournalEntry{}
	}
	RespondWithPaginatedData(c, entries, pagination.Page, pagination.PerPage, int(total))
}

func (h *PointsHandler) Transfer(c *gin.Context) {
	var req PointTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	transfer, err := h.points.Transfer(c.Request.Context(), settlement_engine.TransferRequest{
		FromOfficeID: req.FromOfficeID,
		ToOfficeID:   req.ToOfficeID,
		Amount:       req.Amount,
		Reason:       req.Reason,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, transfer)
}

// ClosedSum reports the sum of every balance. Anything but zero is logged as
// an invariant violation by the engine; the endpoint still answers 200.
func (h *PointsHandler) ClosedSum(c *gin.Context) {
	sum, err := h.points.VerifyClosedSum(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, ClosedSumResponse{Sum: sum, Balanced: sum == 0, VerifiedAt: time.Now().UTC()})
}
