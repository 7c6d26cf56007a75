package domain

import "time"

type EventType string

const (
	EventBookingCreated      EventType = "BOOKING_CREATED"
	EventBookingUpdated      EventType = "BOOKING_UPDATED"
	EventBookingStateChanged EventType = "BOOKING_STATE_CHANGED"
	EventBookingCancelled    EventType = "BOOKING_CANCELLED"
)

// Event is a server-initiated domain notification pushed over the realtime
// channel. Version mirrors the booking version after the change, so
// duplicate deliveries can be detected and skipped.
type Event struct {
	Type      EventType `json:"event_type"`
	BookingID int64     `json:"aggregate_id"`
	Timestamp time.Time `json:"timestamp"`
	Version   int64     `json:"version"`

	// Booking is the authoritative snapshot after the change.
	Booking *Booking `json:"booking,omitempty"`

	// State change details (BOOKING_STATE_CHANGED, BOOKING_CANCELLED).
	FromState BookingState `json:"from_state,omitempty"`
	ToState   BookingState `json:"to_state,omitempty"`
	Reason    string       `json:"reason,omitempty"`

	// Fields is the partial diff for BOOKING_UPDATED.
	Fields map[string]any `json:"fields,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}
