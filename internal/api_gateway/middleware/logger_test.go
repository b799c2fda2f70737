package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "Success", status: http.StatusOK, wantLevel: "INFO"},
		{name: "ClientError", status: http.StatusConflict, wantLevel: "WARN"},
		{name: "ServerError", status: http.StatusServiceUnavailable, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuffer bytes.Buffer
			testLogger := slog.New(slog.NewJSONHandler(&logBuffer, nil))

			router := gin.New()
			router.Use(CorrelationID())
			router.Use(Logger(testLogger))
			router.GET("/api/v1/regions/:regionId/offices/:officeId/calls/:callId", func(c *gin.Context) {
				c.Status(tt.status)
			})

			req, _ := http.NewRequest(http.MethodGet, "/api/v1/regions/seoul/offices/gangnam/calls/42", nil)
			req.Header.Set(CorrelationIDHeader, "corr-1")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			out := logBuffer.String()
			assert.Contains(t, out, `"level":"`+tt.wantLevel+`"`)
			assert.Contains(t, out, `"msg":"HTTP request"`)
			assert.Contains(t, out, `"route":"/api/v1/regions/:regionId/offices/:officeId/calls/:callId"`)
			assert.Contains(t, out, `"path":"/api/v1/regions/seoul/offices/gangnam/calls/42"`)
			assert.Contains(t, out, `"office_id":"gangnam"`)
			assert.Contains(t, out, `"correlation_id":"corr-1"`)
		})
	}

	t.Run("UnmatchedRoute", func(t *testing.T) {
		var logBuffer bytes.Buffer
		router := gin.New()
		router.Use(Logger(slog.New(slog.NewJSONHandler(&logBuffer, nil))))

		req, _ := http.NewRequest(http.MethodGet, "/nowhere", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)

		assert.Contains(t, logBuffer.String(), `"route":"unmatched"`)
		assert.Contains(t, logBuffer.String(), `"status":404`)
	})
}
