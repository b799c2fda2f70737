package shared

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope of every change published through the outbox.
// AggregateID is the id of the document that changed.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	RegionID    string          `json:"region_id,omitempty"`
	OfficeID    string          `json:"office_id,omitempty"`
	Data        json.RawMessage `json:"data"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// NewEvent marshals data into a fresh event envelope
func NewEvent(eventType EventType, aggregateID string, scope Scope, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		RegionID:    scope.RegionID,
		OfficeID:    scope.OfficeID,
		Data:        raw,
		OccurredAt:  time.Now().UTC(),
	}, nil
}

// DecodeData unmarshals the event payload into v
func (e *Event) DecodeData(v any) error {
	return json.Unmarshal(e.Data, v)
}
