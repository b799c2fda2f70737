package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/dispatch-ledger/internal/domain/sharedcall"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CallRepository struct {
	store *Store
	tx    *memTx
}

func (r *CallRepository) WithTx(tx pgx.Tx) call.Repository {
	if mt, ok := txState(tx); ok {
		return &CallRepository{store: r.store, tx: mt}
	}
	return r
}

func (r *CallRepository) Create(_ context.Context, c *call.Call) error {
	return r.store.write(r.tx, func(st *state) error {
		if _, exists := st.calls[c.ID]; exists {
			return fmt.Errorf("failed to create call: %s already exists", c.ID)
		}
		st.calls[c.ID] = *c
		return nil
	})
}

func (r *CallRepository) GetByID(_ context.Context, scope shared.Scope, id uuid.UUID) (*call.Call, error) {
	var found call.Call
	err := r.store.read(r.tx, func(st *state) error {
		c, ok := st.calls[id]
		if !ok || c.RegionID != scope.RegionID || c.OfficeID != scope.OfficeID {
			return call.ErrCallNotFound{CallID: id}
		}
		found = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

// LockForUpdate is a plain read; transactions are already serialized
func (r *CallRepository) LockForUpdate(ctx context.Context, scope shared.Scope, id uuid.UUID) (*call.Call, error) {
	return r.GetByID(ctx, scope, id)
}

func (r *CallRepository) Update(_ context.Context, c *call.Call) error {
	return r.store.write(r.tx, func(st *state) error {
		stored, ok := st.calls[c.ID]
		if !ok || stored.RegionID != c.RegionID || stored.OfficeID != c.OfficeID {
			return call.ErrCallNotFound{CallID: c.ID}
		}
		if stored.Version != c.Version-1 {
			return call.ErrConcurrentModification{CallID: c.ID}
		}
		st.calls[c.ID] = *c
		return nil
	})
}

func (r *CallRepository) List(_ context.Context, scope shared.Scope, filter call.ListFilter) ([]*call.Call, error) {
	var matched []*call.Call
	_ = r.store.read(r.tx, func(st *state) error {
		for _, c := range st.calls {
			if c.RegionID != scope.RegionID || c.OfficeID != scope.OfficeID {
				continue
			}
			if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, c.Status) {
				continue
			}
			c := c
			matched = append(matched, &c)
		}
		return nil
	})
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, filter.Limit, filter.Offset), nil
}

type SharedCallRepository struct {
	store *Store
	tx    *memTx
}

func (r *SharedCallRepository) WithTx(tx pgx.Tx) sharedcall.Repository {
	if mt, ok := txState(tx); ok {
		return &SharedCallRepository{store: r.store, tx: mt}
	}
	return r
}

func (r *SharedCallRepository) Create(_ context.Context, sc *sharedcall.SharedCall) error {
	return r.store.write(r.tx, func(st *state) error {
		if _, exists := st.sharedCalls[sc.ID]; exists {
			return fmt.Errorf("failed to create shared call: %s already exists", sc.ID)
		}
		st.sharedCalls[sc.ID] = *sc
		return nil
	})
}

func (r *SharedCallRepository) GetByID(_ context.Context, id uuid.UUID) (*sharedcall.SharedCall, error) {
	var found sharedcall.SharedCall
	err := r.store.read(r.tx, func(st *state) error {
		sc, ok := st.sharedCalls[id]
		if !ok {
			return sharedcall.ErrSharedCallNotFound{SharedCallID: id}
		}
		found = sc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r *SharedCallRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*sharedcall.SharedCall, error) {
	return r.GetByID(ctx, id)
}

func (r *SharedCallRepository) MarkClaimed(_ context.Context, sc *sharedcall.SharedCall) error {
	return r.store.write(r.tx, func(st *state) error {
		stored, ok := st.sharedCalls[sc.ID]
		if !ok {
			return sharedcall.ErrSharedCallNotFound{SharedCallID: sc.ID}
		}
		if stored.Status != sharedcall.StatusOpen || stored.Processed {
			return sharedcall.ErrAlreadyClaimed{SharedCallID: sc.ID}
		}
		st.sharedCalls[sc.ID] = *sc
		return nil
	})
}

func (r *SharedCallRepository) MarkCompleted(_ context.Context, sc *sharedcall.SharedCall) error {
	return r.store.write(r.tx, func(st *state) error {
		stored, ok := st.sharedCalls[sc.ID]
		if !ok {
			return sharedcall.ErrSharedCallNotFound{SharedCallID: sc.ID}
		}
		if stored.Status != sharedcall.StatusClaimed {
			return shared.StaleStateError{ID: sc.ID.String(), Expected: string(sharedcall.StatusClaimed), Actual: string(stored.Status)}
		}
		st.sharedCalls[sc.ID] = *sc
		return nil
	})
}

func (r *SharedCallRepository) ListOpen(_ context.Context, targetRegionID string, limit int) ([]*sharedcall.SharedCall, error) {
	var open []*sharedcall.SharedCall
	_ = r.store.read(r.tx, func(st *state) error {
		for _, sc := range st.sharedCalls {
			if sc.Status != sharedcall.StatusOpen {
				continue
			}
			if targetRegionID != "" && sc.TargetRegionID != "" && sc.TargetRegionID != targetRegionID {
				continue
			}
			sc := sc
			open = append(open, &sc)
		}
		return nil
	})
	sort.Slice(open, func(i, j int) bool {
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})
	return page(open, limit, 0), nil
}
