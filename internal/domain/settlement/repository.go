package settlement

import (
	"context"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SessionRepository defines session persistence, one OPEN session per office at most
type SessionRepository interface {
	// GetOpenForUpdate returns nil, nil when the office has no open session
	GetOpenForUpdate(ctx context.Context, officeID string) (*Session, error)
	GetOpen(ctx context.Context, officeID string) (*Session, error)
	GetByID(ctx context.Context, officeID string, id uuid.UUID) (*Session, error)
	Create(ctx context.Context, session *Session) error
	Update(ctx context.Context, session *Session) error
	WithTx(tx pgx.Tx) SessionRepository
}

// RecordRepository defines settlement record persistence
type RecordRepository interface {
	// Insert returns false without writing when a trip with the same call id exists
	Insert(ctx context.Context, record *Record) (bool, error)
	GetTripByCallID(ctx context.Context, officeID, callID string) (*Record, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Record, error)
	ListByWorkDate(ctx context.Context, officeID, fromDate, toDate string) ([]*Record, error)

	// FinalizeSession marks every record of the session finalized
	FinalizeSession(ctx context.Context, sessionID uuid.UUID) (int64, error)
	WithTx(tx pgx.Tx) RecordRepository
}

// ErrSessionNotFound indicates missing session
type ErrSessionNotFound struct {
	SessionID uuid.UUID
}

func (e ErrSessionNotFound) Error() string {
	return "settlement session not found: " + e.SessionID.String()
}

func (e ErrSessionNotFound) Is(target error) bool {
	return target == shared.ErrNotFound
}

// ErrRecordNotFound indicates missing settlement record
type ErrRecordNotFound struct {
	CallID string
}

func (e ErrRecordNotFound) Error() string {
	return "settlement record not found for call: " + e.CallID
}

func (e ErrRecordNotFound) Is(target error) bool {
	return target == shared.ErrNotFound
}
