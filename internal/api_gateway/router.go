package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dispatch-ledger/internal/api_gateway/handler"
	"github.com/dispatch-ledger/internal/api_gateway/middleware"
	"github.com/dispatch-ledger/internal/config"
	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers mounted by the gateway
type Handlers struct {
	Calls       *handler.CallHandler
	SharedCalls *handler.SharedCallHandler
	Settlement  *handler.SettlementHandler
	Points      *handler.PointsHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, cors config.CORSConfig, h Handlers) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cors))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	v1 := r.Group("/api/v1")
	{
		office := v1.Group("/regions/:regionId/offices/:officeId")
		{
			calls := office.Group("/calls")
			{
				calls.POST("", h.Calls.Create)
				calls.GET("", h.Calls.List)
				calls.GET("/:callId", h.Calls.Get)
				calls.POST("/:callId/assign", h.Calls.Assign)
				calls.POST("/:callId/accept", h.Calls.Accept)
				calls.POST("/:callId/start", h.Calls.Start)
				calls.POST("/:callId/settlement-request", h.Calls.RequestSettlement)
				calls.POST("/:callId/finalize", h.Calls.Finalize)
				calls.POST("/:callId/cancel", h.Calls.Cancel)
				calls.POST("/:callId/hold", h.Calls.Hold)
				calls.POST("/:callId/resume", h.Calls.Resume)
			}
			office.GET("/board", h.Calls.Board)

			settlement := office.Group("/settlement")
			{
				settlement.POST("/trips", h.Settlement.RecordTrip)
				settlement.POST("/adjustments", h.Settlement.RecordAdjustment)
				settlement.POST("/sessions/close", h.Settlement.CloseSession)
				settlement.GET("/sessions/current", h.Settlement.CurrentSession)
				settlement.GET("/sessions/:sessionId/report", h.Settlement.SessionReport)
				settlement.GET("/report", h.Settlement.DateRangeReport)
			}

			office.POST("/credits", h.Settlement.PostCredit)
			office.GET("/credits/lookup", h.Settlement.LookupCredit)
		}

		credits := v1.Group("/credits")
		{
			credits.GET("/:accountId", h.Settlement.GetCredit)
			credits.POST("/:accountId/payments", h.Settlement.PayCredit)
		}

		sharedCalls := v1.Group("/shared-calls")
		{
			sharedCalls.POST("", h.SharedCalls.Publish)
			sharedCalls.GET("", h.SharedCalls.ListOpen)
			sharedCalls.GET("/:id", h.SharedCalls.Get)
			sharedCalls.POST("/:id/claim", h.SharedCalls.Claim)
		}

		v1.GET("/offices/:officeId/points", h.Points.Balance)
		v1.GET("/offices/:officeId/points/journal", h.Points.Journal)
		v1.POST("/points/transfers", h.Points.Transfer)
		v1.GET("/points/closed-sum", h.Points.ClosedSum)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
