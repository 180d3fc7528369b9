package pipeline

import (
	"context"

	"github.com/google/uuid"
)

// Event is the unit of work flowing through the pipeline. The payload is
// owned by the producer until publish, then read-only for every consumer
// that observes it.
type Event struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Payload any    `json:"payload,omitempty"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(kind string, payload any) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: payload,
	}
}

// Handler is user pipeline logic: consume one event, emit zero or more
// downstream events. Handlers must respect ctx cancellation; that is what
// makes stalled-worker recovery cooperative.
type Handler func(ctx context.Context, ev Event) ([]Event, error)
