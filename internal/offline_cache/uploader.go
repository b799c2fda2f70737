package offline_cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dispatch-ledger/internal/domain/settlement"
)

// UploadError is a trip the gateway refused
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("gateway rejected trip (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		Duplicate bool `json:"duplicate"`
	} `json:"data"`
	Error *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

// HTTPUploader records trips through the gateway's settlement endpoint
type HTTPUploader struct {
	baseURL string
	client  *http.Client
}

func NewHTTPUploader(baseURL string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (u *HTTPUploader) tripsURL(trip settlement.Trip) string {
	return fmt.Sprintf("%s/api/v1/regions/%s/offices/%s/settlement/trips",
		u.baseURL, url.PathEscape(trip.Scope.RegionID), url.PathEscape(trip.Scope.OfficeID))
}

func (u *HTTPUploader) Upload(ctx context.Context, trip settlement.Trip) (*UploadResult, error) {
	body, err := json.Marshal(trip)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trip %s: %w", trip.CallID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.tripsURL(trip), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", "offline-sync-"+trip.CallID)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload trip %s: %w", trip.CallID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &UploadError{StatusCode: resp.StatusCode, Code: "BAD_RESPONSE", Message: err.Error(), Retryable: true}
	}
	if resp.StatusCode >= 300 || !env.Success {
		uploadErr := &UploadError{StatusCode: resp.StatusCode, Retryable: resp.StatusCode >= 500}
		if env.Error != nil {
			uploadErr.Code = env.Error.Code
			uploadErr.Message = env.Error.Message
			uploadErr.Retryable = env.Error.Retryable
		}
		return nil, uploadErr
	}

	return &UploadResult{Duplicate: env.Data.Duplicate}, nil
}
