package shared

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

// EventType names a domain change published to collaborators
type EventType string

const (
	EventCallCreated         EventType = "call.created"
	EventCallStatusChanged   EventType = "call.status_changed"
	EventSharedCallPublished EventType = "shared_call.published"
	EventSharedCallClaimed   EventType = "shared_call.claimed"
	EventSharedCallCompleted EventType = "shared_call.completed"
	EventPointsTransferred   EventType = "points.transferred"
	EventTripRecorded        EventType = "settlement.trip_recorded"
	EventSessionClosed       EventType = "settlement.session_closed"
	EventCreditPosted        EventType = "credit.posted"
	EventCreditPaid          EventType = "credit.paid"
)
