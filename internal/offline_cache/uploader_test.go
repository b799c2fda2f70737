package offline_cache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPUploader_Upload(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantDuplicate bool
		wantErr       bool
		wantRetryable bool
	}{
		{
			name:   "recorded",
			status: http.StatusCreated,
			body:   `{"success":true,"data":{"duplicate":false}}`,
		},
		{
			name:          "already recorded",
			status:        http.StatusOK,
			body:          `{"success":true,"data":{"duplicate":true}}`,
			wantDuplicate: true,
		},
		{
			name:    "rejected",
			status:  http.StatusUnprocessableEntity,
			body:    `{"success":false,"error":{"code":"FARE_MISMATCH","message":"bad breakdown","retryable":false}}`,
			wantErr: true,
		},
		{
			name:          "store unavailable",
			status:        http.StatusServiceUnavailable,
			body:          `{"success":false,"error":{"code":"TRANSACTION_ABORTED","message":"try later","retryable":true}}`,
			wantErr:       true,
			wantRetryable: true,
		},
		{
			name:          "not json",
			status:        http.StatusBadGateway,
			body:          `<html>bad gateway</html>`,
			wantErr:       true,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received settlement.Trip
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/regions/seoul/offices/gangnam/settlement/trips", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			uploader := NewHTTPUploader(server.URL+"/", time.Second)
			result, err := uploader.Upload(context.Background(), trip("call-1", 10000))

			assert.Equal(t, "call-1", received.CallID)
			if tt.wantErr {
				var uploadErr *UploadError
				require.ErrorAs(t, err, &uploadErr)
				assert.Equal(t, tt.status, uploadErr.StatusCode)
				assert.Equal(t, tt.wantRetryable, uploadErr.Retryable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDuplicate, result.Duplicate)
		})
	}
}

func TestHTTPUploader_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := NewHTTPUploader(server.URL, 100*time.Millisecond).Upload(context.Background(), trip("call-1", 10000))
	assert.Error(t, err)
}
