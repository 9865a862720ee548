// Package events carries attendance and enrollment events to the
// notification outbox and the MQTT broker.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names an attendance event.
type Type string

const (
	Arrival   Type = "arrival"
	Late      Type = "late"
	Departure Type = "departure"
	Enrolled  Type = "enrolled"
)

// Event is published once per state change.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	PersonID   string    `json:"person_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Department string    `json:"department,omitempty"`
	Date       string    `json:"date"`
	At         time.Time `json:"at"`
	ShiftStart string    `json:"shift_start,omitempty"`
}

// New creates an event with a fresh ID.
func New(t Type, personID, name string, at time.Time) Event {
	return Event{
		ID:       uuid.New().String(),
		Type:     t,
		PersonID: personID,
		Name:     name,
		Date:     at.Format("2006-01-02"),
		At:       at,
	}
}

// Sink consumes events. Publish must not block on slow transports.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

// Multi delivers every event to each sink in order.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, e)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
