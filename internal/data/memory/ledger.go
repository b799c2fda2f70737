package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dispatch-ledger/internal/domain/credit"
	"github.com/dispatch-ledger/internal/domain/outbox"
	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/domain/settlement"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var errOpenSessionExists = errors.New("office already has an open session")

type PointsRepository struct {
	store *Store
	tx    *memTx
}

func (r *PointsRepository) WithTx(tx pgx.Tx) points.Repository {
	if mt, ok := txState(tx); ok {
		return &PointsRepository{store: r.store, tx: mt}
	}
	return r
}

func (r *PointsRepository) ApplyDelta(_ context.Context, officeID string, delta int64, at time.Time) (*points.Balance, error) {
	var updated points.Balance
	err := r.store.write(r.tx, func(st *state) error {
		b := st.balances[officeID]
		b.OfficeID = officeID
		b.Balance += delta
		b.UpdatedAt = at
		st.balances[officeID] = b
		updated = b
		return nil
	})
	return &updated, err
}

func (r *PointsRepository) GetByOfficeID(_ context.Context, officeID string) (*points.Balance, error) {
	b := points.Balance{OfficeID: officeID}
	_ = r.store.read(r.tx, func(st *state) error {
		if stored, ok := st.balances[officeID]; ok {
			b = stored
		}
		return nil
	})
	return &b, nil
}

func (r *PointsRepository) Sum(_ context.Context) (int64, error) {
	var sum int64
	_ = r.store.read(r.tx, func(st *state) error {
		for _, b := range st.balances {
			sum += b.Balance
		}
		return nil
	})
	return sum, nil
}

type SessionRepository struct {
	store *Store
	tx    *memTx
}

func (r *SessionRepository) WithTx(tx pgx.Tx) settlement.SessionRepository {
	if mt, ok := txState(tx); ok {
		return &SessionRepository{store: r.store, tx: mt}
	}
	return r
}

func openSession(st *state, officeID string) *settlement.Session {
	for _, s := range st.sessions {
		if s.OfficeID == officeID && s.Status == settlement.SessionOpen {
			s := s
			return &s
		}
	}
	return nil
}

func (r *SessionRepository) GetOpenForUpdate(ctx context.Context, officeID string) (*settlement.Session, error) {
	return r.GetOpen(ctx, officeID)
}

func (r *SessionRepository) GetOpen(_ context.Context, officeID string) (*settlement.Session, error) {
	var open *settlement.Session
	_ = r.store.read(r.tx, func(st *state) error {
		open = openSession(st, officeID)
		return nil
	})
	return open, nil
}

func (r *SessionRepository) GetByID(_ context.Context, officeID string, id uuid.UUID) (*settlement.Session, error) {
	var found settlement.Session
	err := r.store.read(r.tx, func(st *state) error {
		s, ok := st.sessions[id]
		if !ok || s.OfficeID != officeID {
			return settlement.ErrSessionNotFound{SessionID: id}
		}
		found = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r *SessionRepository) Create(_ context.Context, s *settlement.Session) error {
	return r.store.write(r.tx, func(st *state) error {
		if s.Status == settlement.SessionOpen && openSession(st, s.OfficeID) != nil {
			return shared.AbortedError{Op: "open session", Err: errOpenSessionExists}
		}
		st.sessions[s.ID] = *s
		return nil
	})
}

func (r *SessionRepository) Update(_ context.Context, s *settlement.Session) error {
	return r.store.write(r.tx, func(st *state) error {
		if _, ok := st.sessions[s.ID]; !ok {
			return settlement.ErrSessionNotFound{SessionID: s.ID}
		}
		st.sessions[s.ID] = *s
		return nil
	})
}

type RecordRepository struct {
	store *Store
	tx    *memTx
}

func (r *RecordRepository) WithTx(tx pgx.Tx) settlement.RecordRepository {
	if mt, ok := txState(tx); ok {
		return &RecordRepository{store: r.store, tx: mt}
	}
	return r
}

func tripByCallID(st *state, callID string) (settlement.Record, bool) {
	for _, rec := range st.records {
		if rec.Kind == settlement.KindTrip && rec.CallID == callID {
			return rec, true
		}
	}
	return settlement.Record{}, false
}

func (r *RecordRepository) Insert(_ context.Context, rec *settlement.Record) (bool, error) {
	inserted := false
	err := r.store.write(r.tx, func(st *state) error {
		if rec.Kind == settlement.KindTrip {
			if _, exists := tripByCallID(st, rec.CallID); exists {
				return nil
			}
		}
		st.records[rec.ID] = *rec
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *RecordRepository) GetTripByCallID(_ context.Context, officeID, callID string) (*settlement.Record, error) {
	var found settlement.Record
	err := r.store.read(r.tx, func(st *state) error {
		rec, ok := tripByCallID(st, callID)
		if !ok || rec.OfficeID != officeID {
			return settlement.ErrRecordNotFound{CallID: callID}
		}
		found = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r *RecordRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*settlement.Record, error) {
	return r.list(func(rec *settlement.Record) bool {
		return rec.SessionID != nil && *rec.SessionID == sessionID
	}), nil
}

func (r *RecordRepository) ListByWorkDate(_ context.Context, officeID, fromDate, toDate string) ([]*settlement.Record, error) {
	return r.list(func(rec *settlement.Record) bool {
		return rec.OfficeID == officeID && rec.WorkDate >= fromDate && rec.WorkDate <= toDate
	}), nil
}

func (r *RecordRepository) list(match func(*settlement.Record) bool) []*settlement.Record {
	records := make([]*settlement.Record, 0)
	_ = r.store.read(r.tx, func(st *state) error {
		for _, rec := range st.records {
			rec := rec
			if match(&rec) {
				records = append(records, &rec)
			}
		}
		return nil
	})
	sort.Slice(records, func(i, j int) bool {
		if records[i].WorkDate != records[j].WorkDate {
			return records[i].WorkDate < records[j].WorkDate
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records
}

func (r *RecordRepository) FinalizeSession(_ context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := r.store.write(r.tx, func(st *state) error {
		for id, rec := range st.records {
			if rec.SessionID != nil && *rec.SessionID == sessionID && !rec.IsFinalized {
				rec.IsFinalized = true
				st.records[id] = rec
				n++
			}
		}
		return nil
	})
	return n, err
}

type CreditRepository struct {
	store *Store
	tx    *memTx
}

func (r *CreditRepository) WithTx(tx pgx.Tx) credit.Repository {
	if mt, ok := txState(tx); ok {
		return &CreditRepository{store: r.store, tx: mt}
	}
	return r
}

func (r *CreditRepository) UpsertIncrement(_ context.Context, a *credit.Account, amount int64, at time.Time) (*credit.Account, error) {
	var stored credit.Account
	err := r.store.write(r.tx, func(st *state) error {
		for id, existing := range st.accounts {
			if existing.OfficeID == a.OfficeID && existing.LookupKey == a.LookupKey {
				existing.TotalOutstanding += amount
				if a.CustomerName != "" {
					existing.CustomerName = a.CustomerName
				}
				existing.UpdatedAt = at
				st.accounts[id] = existing
				stored = existing
				return nil
			}
		}
		created := *a
		created.Entries = nil
		created.TotalOutstanding = amount
		created.CreatedAt = at
		created.UpdatedAt = at
		st.accounts[created.ID] = created
		stored = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *CreditRepository) AddEntry(_ context.Context, e *credit.Entry) error {
	return r.store.write(r.tx, func(st *state) error {
		if _, ok := st.accounts[e.AccountID]; !ok {
			return credit.ErrAccountNotFound{Key: e.AccountID.String()}
		}
		st.entries[e.AccountID] = append(st.entries[e.AccountID], *e)
		return nil
	})
}

func (r *CreditRepository) GetByID(_ context.Context, id uuid.UUID) (*credit.Account, error) {
	return r.get(id.String(), func(a *credit.Account) bool { return a.ID == id })
}

func (r *CreditRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*credit.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *CreditRepository) FindByLookupKey(_ context.Context, officeID, key string) (*credit.Account, error) {
	return r.get(key, func(a *credit.Account) bool { return a.OfficeID == officeID && a.LookupKey == key })
}

func (r *CreditRepository) get(key string, match func(*credit.Account) bool) (*credit.Account, error) {
	var found *credit.Account
	_ = r.store.read(r.tx, func(st *state) error {
		for _, a := range st.accounts {
			a := a
			if !match(&a) {
				continue
			}
			a.Entries = make([]*credit.Entry, 0, len(st.entries[a.ID]))
			for _, e := range st.entries[a.ID] {
				e := e
				a.Entries = append(a.Entries, &e)
			}
			found = &a
			return nil
		}
		return nil
	})
	if found == nil {
		return nil, credit.ErrAccountNotFound{Key: key}
	}
	return found, nil
}

func (r *CreditRepository) UpdatePayment(_ context.Context, a *credit.Account, touched []*credit.Entry) error {
	return r.store.write(r.tx, func(st *state) error {
		stored, ok := st.accounts[a.ID]
		if !ok {
			return credit.ErrAccountNotFound{Key: a.ID.String()}
		}
		stored.TotalOutstanding = a.TotalOutstanding
		stored.UpdatedAt = a.UpdatedAt
		stored.LastPaidAt = a.LastPaidAt
		st.accounts[a.ID] = stored

		entries := st.entries[a.ID]
		for _, t := range touched {
			for i := range entries {
				if entries[i].ID == t.ID {
					entries[i].PaidAmount = t.PaidAmount
				}
			}
		}
		return nil
	})
}

type OutboxRepository struct {
	store *Store
	tx    *memTx
}

func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	if mt, ok := txState(tx); ok {
		return &OutboxRepository{store: r.store, tx: mt}
	}
	return r
}

func (r *OutboxRepository) Create(_ context.Context, m *outbox.Message) error {
	return r.store.write(r.tx, func(st *state) error {
		for _, existing := range st.outbox {
			if existing.EventID == m.EventID {
				return outbox.ErrDuplicateMessage{EventID: m.EventID}
			}
		}
		st.outboxSeq++
		m.ID = st.outboxSeq
		st.outbox = append(st.outbox, *m)
		return nil
	})
}

func (r *OutboxRepository) GetPending(_ context.Context, limit int) ([]*outbox.Message, error) {
	var pending []*outbox.Message
	_ = r.store.read(r.tx, func(st *state) error {
		for _, m := range st.outbox {
			if m.Status == shared.OutboxStatusPending {
				m := m
				pending = append(pending, &m)
			}
		}
		return nil
	})
	return page(pending, limit, 0), nil
}

func (r *OutboxRepository) update(id int64, fn func(m *outbox.Message)) error {
	return r.store.write(r.tx, func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID == id {
				fn(&st.outbox[i])
				return nil
			}
		}
		return outbox.ErrMessageNotFound{ID: id}
	})
}

func (r *OutboxRepository) UpdateStatus(_ context.Context, id int64, status shared.OutboxStatus) error {
	return r.update(id, func(m *outbox.Message) {
		now := time.Now()
		m.Status = status
		m.LastAttemptAt = &now
	})
}

func (r *OutboxRepository) IncrementAttempts(_ context.Context, id int64) error {
	return r.update(id, func(m *outbox.Message) { m.IncrementAttempts() })
}

func (r *OutboxRepository) Delete(_ context.Context, id int64) error {
	return r.store.write(r.tx, func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID == id {
				st.outbox = append(st.outbox[:i:i], st.outbox[i+1:]...)
				return nil
			}
		}
		return outbox.ErrMessageNotFound{ID: id}
	})
}

func (r *OutboxRepository) GetByEventID(_ context.Context, eventID uuid.UUID) (*outbox.Message, error) {
	var found *outbox.Message
	_ = r.store.read(r.tx, func(st *state) error {
		for _, m := range st.outbox {
			if m.EventID == eventID {
				m := m
				found = &m
				return nil
			}
		}
		return nil
	})
	if found == nil {
		return nil, outbox.ErrMessageNotFound{ID: 0}
	}
	return found, nil
}

