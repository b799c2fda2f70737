package settlement

import (
	"time"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// SessionStatus of a business-day batch
type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

// Session groups the settlement records of one office for one business day
type Session struct {
	ID         uuid.UUID     `json:"session_id"`
	RegionID   string        `json:"region_id"`
	OfficeID   string        `json:"office_id"`
	Status     SessionStatus `json:"status"`
	OpenedAt   time.Time     `json:"opened_at"`
	ClosedAt   *time.Time    `json:"closed_at,omitempty"`
	TotalTrips int           `json:"total_trips"`
	TotalFare  int64         `json:"total_fare"`
}

func NewSession(scope shared.Scope, at time.Time) *Session {
	return &Session{
		ID:       uuid.New(),
		RegionID: scope.RegionID,
		OfficeID: scope.OfficeID,
		Status:   SessionOpen,
		OpenedAt: at,
	}
}

// Attach links the record to the session and accumulates its totals.
// Only trips count towards TotalTrips; every record counts towards TotalFare.
func (s *Session) Attach(r *Record) error {
	if s.Status != SessionOpen {
		return shared.InvalidTransitionError{Entity: "session", ID: s.ID.String(), From: string(s.Status), To: "ATTACH"}
	}
	id := s.ID
	r.SessionID = &id
	if r.Kind == KindTrip {
		s.TotalTrips++
	}
	s.TotalFare += r.Fare
	return nil
}

// Close ends the business day. A session without trips cannot be closed.
func (s *Session) Close(at time.Time) error {
	if s.Status != SessionOpen || s.TotalTrips == 0 {
		return shared.InvalidTransitionError{Entity: "session", ID: s.ID.String(), From: string(s.Status), To: string(SessionClosed)}
	}
	s.Status = SessionClosed
	s.ClosedAt = &at
	return nil
}

// Reconciles reports whether records sum to the session totals
func (s *Session) Reconciles(tripCount int, fareSum int64) bool {
	return s.TotalTrips == tripCount && s.TotalFare == fareSum
}
