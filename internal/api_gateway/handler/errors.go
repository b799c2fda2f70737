package handler

import (
	"errors"
	"net/http"

	"github.com/dispatch-ledger/internal/dispatch"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/settlement_engine"
	"github.com/gin-gonic/gin"
)

type errorMapping struct {
	target    error
	status    int
	code      string
	retryable bool
}

// Checked in order; the first match wins.
var errorMappings = []errorMapping{
	{shared.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR", false},
	{shared.ErrFareMismatch, http.StatusUnprocessableEntity, "FARE_MISMATCH", false},
	{shared.ErrInvalidTransition, http.StatusUnprocessableEntity, "INVALID_TRANSITION", false},
	{shared.ErrNotFound, http.StatusNotFound, "NOT_FOUND", false},
	{shared.ErrStaleState, http.StatusConflict, "STALE_STATE", true},
	{shared.ErrAlreadyClaimed, http.StatusConflict, "ALREADY_CLAIMED", false},
	{settlement_engine.ErrUnreconciled, http.StatusConflict, "UNRECONCILED", false},
	{shared.ErrTransactionAborted, http.StatusServiceUnavailable, "TRANSACTION_ABORTED", true},
	{settlement_engine.ErrJournalUnavailable, http.StatusServiceUnavailable, "JOURNAL_UNAVAILABLE", false},
	{dispatch.ErrBoardStopped, http.StatusServiceUnavailable, "BOARD_UNAVAILABLE", true},
}

// RespondError maps an operation error onto the envelope. Unknown errors are
// reported as a retryable 500 without leaking their text.
func RespondError(c *gin.Context, err error) {
	_ = c.Error(err)

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			RespondWithError(c, m.status, m.code, err.Error(), m.retryable)
			return
		}
	}
	if ctxErr := c.Request.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		RespondWithError(c, http.StatusServiceUnavailable, "REQUEST_CANCELED", "request canceled", true)
		return
	}
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred", true)
}
