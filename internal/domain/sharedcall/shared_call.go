package sharedcall

import (
	"strings"
	"time"

	"github.com/dispatch-ledger/internal/domain/call"
	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Status of a shared call. OPEN -> CLAIMED -> COMPLETED, never backwards.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusClaimed   Status = "CLAIMED"
	StatusCompleted Status = "COMPLETED"
)

func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusClaimed || s == StatusCompleted
}

// SharedCall is overflow work published by a source office for any other office to claim
type SharedCall struct {
	ID              uuid.UUID  `json:"id"`
	Status          Status     `json:"status"`
	CustomerName    string     `json:"customer_name,omitempty"`
	PhoneNumber     string     `json:"phone_number"`
	Departure       string     `json:"departure"`
	Destination     string     `json:"destination"`
	Fare            int64      `json:"fare"`
	SourceRegionID  string     `json:"source_region_id"`
	SourceOfficeID  string     `json:"source_office_id"`
	TargetRegionID  string     `json:"target_region_id,omitempty"`
	ClaimedRegionID string     `json:"claimed_region_id,omitempty"`
	ClaimedOfficeID string     `json:"claimed_office_id,omitempty"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DestCallID      *uuid.UUID `json:"dest_call_id,omitempty"`
	Processed       bool       `json:"processed"`
}

// PublishParams is what a source office supplies when sharing a call
type PublishParams struct {
	Source         shared.Scope
	TargetRegionID string
	CustomerName   string
	PhoneNumber    string
	Departure      string
	Destination    string
	Fare           int64
	CreatedBy      string
}

// New builds an OPEN shared call
func New(p PublishParams, at time.Time) (*SharedCall, error) {
	if err := p.Source.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Departure) == "" {
		return nil, shared.ValidationError{Field: "departure", Message: "is required"}
	}
	if strings.TrimSpace(p.Destination) == "" {
		return nil, shared.ValidationError{Field: "destination", Message: "is required"}
	}
	if p.Fare <= 0 {
		return nil, shared.ValidationError{Field: "fare", Message: "must be positive"}
	}
	if strings.TrimSpace(p.CreatedBy) == "" {
		return nil, shared.ValidationError{Field: "created_by", Message: "is required"}
	}

	return &SharedCall{
		ID:             uuid.New(),
		Status:         StatusOpen,
		CustomerName:   p.CustomerName,
		PhoneNumber:    p.PhoneNumber,
		Departure:      p.Departure,
		Destination:    p.Destination,
		Fare:           p.Fare,
		SourceRegionID: p.Source.RegionID,
		SourceOfficeID: p.Source.OfficeID,
		TargetRegionID: p.TargetRegionID,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      at,
	}, nil
}

func (s *SharedCall) Path() string {
	return shared.SharedCallPath(s.ID.String())
}

func (s *SharedCall) SourceScope() shared.Scope {
	return shared.Scope{RegionID: s.SourceRegionID, OfficeID: s.SourceOfficeID}
}

// ClaimedScope is the office that owns the destination call
func (s *SharedCall) ClaimedScope() shared.Scope {
	return shared.Scope{RegionID: s.ClaimedRegionID, OfficeID: s.ClaimedOfficeID}
}

// ToCall copies the shared call into a WAITING call owned by the claiming office
func (s *SharedCall) ToCall(claimer shared.Scope, at time.Time) *call.Call {
	sourceID := s.ID
	return &call.Call{
		ID:                 uuid.New(),
		RegionID:           claimer.RegionID,
		OfficeID:           claimer.OfficeID,
		Status:             call.StatusWaiting,
		CustomerName:       s.CustomerName,
		PhoneNumber:        s.PhoneNumber,
		Departure:          s.Departure,
		Destination:        s.Destination,
		Fare:               s.Fare,
		SourceSharedCallID: &sourceID,
		Version:            1,
		CreatedAt:          at,
		UpdatedAt:          at,
	}
}

// MarkClaimed records the claim. It sets the processed guard in the same step.
func (s *SharedCall) MarkClaimed(claimer shared.Scope, destCallID uuid.UUID, at time.Time) error {
	if s.Status != StatusOpen || s.Processed {
		return ErrAlreadyClaimed{SharedCallID: s.ID}
	}
	s.Status = StatusClaimed
	s.ClaimedRegionID = claimer.RegionID
	s.ClaimedOfficeID = claimer.OfficeID
	s.ClaimedAt = &at
	s.DestCallID = &destCallID
	s.Processed = true
	return nil
}

// MarkCompleted applies the external completion notification
func (s *SharedCall) MarkCompleted(at time.Time) error {
	switch s.Status {
	case StatusCompleted:
		return shared.ErrDuplicateApplication
	case StatusClaimed:
		s.Status = StatusCompleted
		s.CompletedAt = &at
		return nil
	default:
		return shared.InvalidTransitionError{
			Entity: "shared_call",
			ID:     s.ID.String(),
			From:   string(s.Status),
			To:     string(StatusCompleted),
		}
	}
}
