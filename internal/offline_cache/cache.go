// Package offline_cache is the worker-side mirror of completed trips recorded
// while disconnected. Trips are staged in a local SQLite file and pushed to
// the gateway by Sync, each one independently.
package offline_cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/shared"
	_ "github.com/mattn/go-sqlite3"
	"github.com/panjf2000/ants/v2"
)

const timeLayout = time.RFC3339Nano

// Uploader submits one staged trip to the settlement ledger
type Uploader interface {
	Upload(ctx context.Context, trip settlement.Trip) (*UploadResult, error)
}

// UploadResult reports whether the server had already recorded the trip
type UploadResult struct {
	Duplicate bool
}

// Entry is one staged trip and its sync state
type Entry struct {
	CallID    string          `json:"call_id"`
	Trip      settlement.Trip `json:"trip"`
	Pending   bool            `json:"pending"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	StagedAt  time.Time       `json:"staged_at"`
	SyncedAt  *time.Time      `json:"synced_at,omitempty"`
}

// SyncReport summarizes one Sync pass. Errors is keyed by call id.
type SyncReport struct {
	Synced     int               `json:"synced"`
	Duplicates int               `json:"duplicates"`
	Failed     int               `json:"failed"`
	Errors     map[string]string `json:"errors,omitempty"`
}

type Cache struct {
	db          *sql.DB
	uploader    Uploader
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// Open creates or reuses the SQLite file at path
func Open(path string, uploader Uploader, logger *slog.Logger, concurrency int) (*Cache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("offline cache path is required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open offline cache: %w", err)
	}
	// one writer at a time; workers queue on the connection instead of failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	c := &Cache{
		db:          db,
		uploader:    uploader,
		concurrency: concurrency,
		now:         time.Now,
		logger:      logger.With("component", "offline_cache"),
	}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate offline cache: %w", err)
	}

	c.logger.Info("Offline cache opened", "path", path, "concurrency", concurrency)
	return c, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) migrate() error {
	_, err := c.db.Exec(`
	CREATE TABLE IF NOT EXISTS staged_records (
		call_id TEXT PRIMARY KEY,
		region_id TEXT NOT NULL,
		office_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		pending INTEGER NOT NULL DEFAULT 1,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		staged_at TEXT NOT NULL,
		synced_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_staged_records_pending
		ON staged_records(pending, staged_at);
	`)
	return err
}

// Stage stores trip as pending. Restaging a pending trip replaces it; a trip
// that was already synced is left alone and Stage returns false.
func (c *Cache) Stage(ctx context.Context, trip settlement.Trip) (bool, error) {
	if strings.TrimSpace(trip.CallID) == "" {
		return false, shared.ValidationError{Field: "call_id", Message: "is required"}
	}
	if err := trip.Scope.Validate(); err != nil {
		return false, err
	}
	payload, err := json.Marshal(trip)
	if err != nil {
		return false, fmt.Errorf("failed to encode trip %s: %w", trip.CallID, err)
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO staged_records (call_id, region_id, office_id, payload_json, pending, staged_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(call_id) DO UPDATE SET
			payload_json = excluded.payload_json,
			region_id = excluded.region_id,
			office_id = excluded.office_id,
			staged_at = excluded.staged_at
		WHERE staged_records.pending = 1
	`, trip.CallID, trip.Scope.RegionID, trip.Scope.OfficeID, string(payload), c.now().UTC().Format(timeLayout))
	if err != nil {
		c.logger.Error("Failed to stage trip", "call_id", trip.CallID, "error", err)
		return false, fmt.Errorf("failed to stage trip %s: %w", trip.CallID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to stage trip %s: %w", trip.CallID, err)
	}
	if n == 0 {
		c.logger.Info("Trip already synced, not restaged", "call_id", trip.CallID)
		return false, nil
	}

	c.logger.Info("Trip staged", "call_id", trip.CallID, "office_id", trip.Scope.OfficeID)
	return true, nil
}

// Sync pushes every pending trip through the uploader on a bounded worker
// pool. A failed upload leaves its trip pending for the next pass and does
// not affect the others.
func (c *Cache) Sync(ctx context.Context) (*SyncReport, error) {
	pending, err := c.Pending(ctx)
	if err != nil {
		return nil, err
	}
	report := &SyncReport{Errors: make(map[string]string)}
	if len(pending) == 0 {
		return report, nil
	}

	pool, err := ants.NewPool(c.concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync pool: %w", err)
	}
	defer pool.Release()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	record := func(callID string, result *UploadResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			report.Failed++
			report.Errors[callID] = err.Error()
		case result != nil && result.Duplicate:
			report.Synced++
			report.Duplicates++
		default:
			report.Synced++
		}
	}

	for _, entry := range pending {
		entry := entry
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			result, err := c.syncOne(ctx, entry)
			record(entry.CallID, result, err)
		})
		if submitErr != nil {
			wg.Done()
			record(entry.CallID, nil, fmt.Errorf("failed to schedule sync: %w", submitErr))
		}
	}
	wg.Wait()

	c.logger.Info("Offline sync finished",
		"pending", len(pending),
		"synced", report.Synced,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
	)
	return report, nil
}

func (c *Cache) syncOne(ctx context.Context, entry *Entry) (*UploadResult, error) {
	result, uploadErr := c.uploader.Upload(ctx, entry.Trip)
	if uploadErr != nil {
		c.logger.Warn("Trip upload failed", "call_id", entry.CallID, "attempt", entry.Attempts+1, "error", uploadErr)
		if _, err := c.db.ExecContext(context.WithoutCancel(ctx), `
			UPDATE staged_records SET attempts = attempts + 1, last_error = ? WHERE call_id = ?
		`, uploadErr.Error(), entry.CallID); err != nil {
			c.logger.Error("Failed to record upload failure", "call_id", entry.CallID, "error", err)
		}
		return nil, uploadErr
	}

	_, err := c.db.ExecContext(context.WithoutCancel(ctx), `
		UPDATE staged_records SET pending = 0, attempts = attempts + 1, last_error = '', synced_at = ? WHERE call_id = ?
	`, c.now().UTC().Format(timeLayout), entry.CallID)
	if err != nil {
		// uploaded but still pending locally; the next pass is answered as a duplicate
		c.logger.Error("Failed to mark trip synced", "call_id", entry.CallID, "error", err)
		return nil, fmt.Errorf("failed to mark trip %s synced: %w", entry.CallID, err)
	}
	return result, nil
}

// Pending returns trips still waiting for a successful upload, oldest first
func (c *Cache) Pending(ctx context.Context) ([]*Entry, error) {
	return c.query(ctx, "WHERE pending = 1")
}

// List returns every staged trip, oldest first
func (c *Cache) List(ctx context.Context) ([]*Entry, error) {
	return c.query(ctx, "")
}

func (c *Cache) query(ctx context.Context, where string) ([]*Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT call_id, payload_json, pending, attempts, last_error, staged_at, synced_at
		FROM staged_records `+where+`
		ORDER BY staged_at ASC, call_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged trips: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		var (
			e        Entry
			payload  string
			pending  int
			stagedAt string
			syncedAt sql.NullString
		)
		if err := rows.Scan(&e.CallID, &payload, &pending, &e.Attempts, &e.LastError, &stagedAt, &syncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan staged trip: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Trip); err != nil {
			return nil, fmt.Errorf("failed to decode staged trip %s: %w", e.CallID, err)
		}
		e.Pending = pending == 1
		if e.StagedAt, err = time.Parse(timeLayout, stagedAt); err != nil {
			return nil, fmt.Errorf("failed to parse staged_at of %s: %w", e.CallID, err)
		}
		if syncedAt.Valid {
			t, err := time.Parse(timeLayout, syncedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse synced_at of %s: %w", e.CallID, err)
			}
			e.SyncedAt = &t
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
