package shared

import (
	"time"

	"github.com/google/uuid"
)

// Event is implemented by the domain events the core hands to external
// collaborators.
type Event interface {
	GetEventID() uuid.UUID
	GetOccurredAt() time.Time
}

// EventMeta gives a domain event a stable identity and emission time.
// Collaborators that may see redeliveries (the alert dispatcher, the
// persistent ledger) dedupe on the event ID.
type EventMeta struct {
	EventID    uuid.UUID `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// GetEventID returns the event's unique identifier
func (m EventMeta) GetEventID() uuid.UUID {
	return m.EventID
}

// GetOccurredAt returns when the event was raised
func (m EventMeta) GetOccurredAt() time.Time {
	return m.OccurredAt
}

// NewEventMeta stamps an event with a generated ID and the given time
func NewEventMeta(now time.Time) EventMeta {
	return EventMeta{
		EventID:    uuid.New(),
		OccurredAt: now,
	}
}
