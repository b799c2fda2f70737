package handler

import (
	"log/slog"
	"net/http"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/domain/sharedcall"
	"github.com/gin-gonic/gin"
)

// SharedCallHandler handles the Sharing operation group
type SharedCallHandler struct {
	sharing SharingService
	logger  *slog.Logger
}

func NewSharedCallHandler(logger *slog.Logger, sharing SharingService) *SharedCallHandler {
	return &SharedCallHandler{
		sharing: sharing,
		logger:  logger,
	}
}

func (h *SharedCallHandler) Publish(c *gin.Context) {
	var req PublishSharedCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	sc, err := h.sharing.Publish(c.Request.Context(), sharedcall.PublishParams{
		Source:         shared.Scope{RegionID: req.SourceRegionID, OfficeID: req.SourceOfficeID},
		TargetRegionID: req.TargetRegionID,
		CustomerName:   req.CustomerName,
		PhoneNumber:    req.PhoneNumber,
		Departure:      req.Departure,
		Destination:    req.Destination,
		Fare:           req.Fare,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, sc)
}

func (h *SharedCallHandler) ListOpen(c *gin.Context) {
	var q ListSharedCallsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		RespondBadRequest(c, "Invalid query: "+err.Error())
		return
	}
	calls, err := h.sharing.ListOpen(c.Request.Context(), q.TargetRegionID, q.Limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	if calls == nil {
		calls = []*sharedcall.SharedCall{}
	}
	RespondOK(c, calls)
}

func (h *SharedCallHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	sc, err := h.sharing.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sc)
}

// Claim answers 201 for the winning claim and 200 when the same office
// repeats a claim it already won. Losers get 409 ALREADY_CLAIMED.
func (h *SharedCallHandler) Claim(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req ClaimSharedCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.sharing.Claim(c.Request.Context(), id, shared.Scope{RegionID: req.RegionID, OfficeID: req.OfficeID})
	if err != nil {
		if shared.IsBenign(err) {
			h.logger.Info("Claim lost", "shared_call_id", id.String(), "office_id", req.OfficeID)
		}
		RespondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	RespondWithData(c, status, result)
}
