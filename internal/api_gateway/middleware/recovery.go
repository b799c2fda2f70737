package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
)

// Recovery turns a panic into a non-retryable 500 in the API envelope
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			correlationID := GetCorrelationID(c)
			logger.Error("Panic recovered",
				"error", r,
				"stack", string(debug.Stack()),
				"method", c.Request.Method,
				"route", c.FullPath(),
				"correlation_id", correlationID,
			)

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":      "INTERNAL_SERVER_ERROR",
					"message":   "An internal server error occurred",
					"retryable": false,
				},
				"meta": gin.H{
					"correlation_id": correlationID,
					"timestamp":      time.Now().UTC(),
				},
			})
		}()

		c.Next()
	}
}
