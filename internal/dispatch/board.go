package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/shared"
)

// ErrBoardStopped is returned by Snapshot once the board's reader has exited
var ErrBoardStopped = errors.New("dispatch board stopped")

// CallSummary is one line of the dispatch board
type CallSummary struct {
	ID                 string      `json:"id"`
	RegionID           string      `json:"region_id"`
	OfficeID           string      `json:"office_id"`
	Status             call.Status `json:"status"`
	Departure          string      `json:"departure"`
	Destination        string      `json:"destination"`
	Fare               int64       `json:"fare"`
	AssignedWorkerName string      `json:"assigned_worker_name,omitempty"`
	Version            int         `json:"version"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func summarize(c *call.Call) CallSummary {
	return CallSummary{
		ID:                 c.ID.String(),
		RegionID:           c.RegionID,
		OfficeID:           c.OfficeID,
		Status:             c.Status,
		Departure:          c.Departure,
		Destination:        c.Destination,
		Fare:               c.Fare,
		AssignedWorkerName: c.AssignedWorkerName,
		Version:            c.Version,
		UpdatedAt:          c.UpdatedAt,
	}
}

type snapshotRequest struct {
	scope shared.Scope
	reply chan []CallSummary
}

// Board keeps the live calls of every office from a stream of change events.
// The view is owned by the goroutine running Run; Snapshot asks it for a copy.
type Board struct {
	requests chan snapshotRequest
	done     chan struct{}
	logger   *slog.Logger
}

func NewBoard(logger *slog.Logger) *Board {
	return &Board{
		requests: make(chan snapshotRequest),
		done:     make(chan struct{}),
		logger:   logger.With("component", "dispatch_board"),
	}
}

// Run applies events until ctx is canceled or events is closed
func (b *Board) Run(ctx context.Context, events <-chan shared.Event) {
	defer close(b.done)
	view := make(map[string]CallSummary)
	// highest version seen for calls that reached a terminal status
	closed := make(map[string]int)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Dispatch board detached", "calls", len(view))
			return
		case event, ok := <-events:
			if !ok {
				b.logger.Info("Dispatch board event stream closed", "calls", len(view))
				return
			}
			b.apply(view, closed, event)
		case req := <-b.requests:
			req.reply <- snapshot(view, req.scope)
		}
	}
}

func (b *Board) apply(view map[string]CallSummary, closed map[string]int, event shared.Event) {
	var c *call.Call
	switch event.Type {
	case shared.EventCallCreated:
		c = &call.Call{}
		if err := event.DecodeData(c); err != nil {
			b.logger.Warn("Skipping malformed call event", "event_id", event.ID.String(), "error", err)
			return
		}
	case shared.EventCallStatusChanged:
		var change StatusChange
		if err := event.DecodeData(&change); err != nil || change.Call == nil {
			b.logger.Warn("Skipping malformed status event", "event_id", event.ID.String(), "error", err)
			return
		}
		c = change.Call
	default:
		return
	}

	id := c.ID.String()
	if current, seen := view[id]; seen && current.Version > c.Version {
		return
	}
	if version, ok := closed[id]; ok && version >= c.Version {
		return
	}
	if c.Status.IsTerminal() {
		delete(view, id)
		closed[id] = c.Version
		return
	}
	view[id] = summarize(c)
}

func snapshot(view map[string]CallSummary, scope shared.Scope) []CallSummary {
	out := make([]CallSummary, 0)
	for _, s := range view {
		if s.RegionID == scope.RegionID && s.OfficeID == scope.OfficeID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Snapshot returns the live calls of one office, most recently changed first
func (b *Board) Snapshot(ctx context.Context, scope shared.Scope) ([]CallSummary, error) {
	reply := make(chan []CallSummary, 1)
	select {
	case b.requests <- snapshotRequest{scope: scope, reply: reply}:
	case <-b.done:
		return nil, ErrBoardStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
