package domain

import (
	"fmt"
	"time"
)

type BookingState string

const (
	StateDraft      BookingState = "draft"
	StatePending    BookingState = "pending"
	StateConfirmed  BookingState = "confirmed"
	StateInProgress BookingState = "in_progress"
	StateCompleted  BookingState = "completed"
	StateCancelled  BookingState = "cancelled"
	StateNoShow     BookingState = "no_show"
)

// Terminal reports whether the state has no outgoing transitions. A booking
// in a terminal state no longer occupies its interval for availability.
func (s BookingState) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateNoShow:
		return true
	}
	return false
}

func (s BookingState) Valid() bool {
	switch s {
	case StateDraft, StatePending, StateConfirmed, StateInProgress,
		StateCompleted, StateCancelled, StateNoShow:
		return true
	}
	return false
}

type Space string

const (
	SpaceMainStudio  Space = "main_studio"
	SpaceSmallStudio Space = "small_studio"
	SpaceOutdoorArea Space = "outdoor_area"
)

func (s Space) Valid() bool {
	switch s {
	case SpaceMainStudio, SpaceSmallStudio, SpaceOutdoorArea:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// TransitionEntry is one step of a booking's lifecycle history. The history
// is append-only; entries are never edited or removed.
type TransitionEntry struct {
	From   BookingState `json:"from_state"`
	To     BookingState `json:"to_state"`
	At     time.Time    `json:"at"`
	Actor  string       `json:"actor,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// PriceBreakdown is the pricing snapshot stored on the booking. It is
// computed once at create/update time and never recomputed implicitly.
type PriceBreakdown struct {
	Base      float64 `json:"base"`
	Equipment float64 `json:"equipment"`
	Discount  float64 `json:"discount"`
	Total     float64 `json:"total"`
	// Anomalous marks a breakdown whose raw total was negative and had to
	// be clamped to zero.
	Anomalous bool `json:"anomalous,omitempty"`
}

type Booking struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`

	Space     Space     `json:"space" validate:"required"`
	Date      time.Time `json:"booking_date"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`

	State   BookingState      `json:"state"`
	History []TransitionEntry `json:"state_history"`

	ClientName  string `json:"client_name" validate:"required"`
	ClientPhone string `json:"client_phone" validate:"required"`
	ClientEmail string `json:"client_email,omitempty" validate:"omitempty,email"`

	Equipment []string `json:"equipment,omitempty"`
	People    int      `json:"people,omitempty"`

	Price         PriceBreakdown `json:"price"`
	PaymentStatus PaymentStatus  `json:"payment_status"`

	Notes string `json:"notes,omitempty"`

	// Version is assigned and incremented by the server on every accepted
	// mutation. Clients never increment it locally.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DurationHours returns the whole-hour length of the booking interval.
func (b *Booking) DurationHours() int {
	return int(b.EndTime.Sub(b.StartTime) / time.Hour)
}

// Clone returns a deep copy, so callers can hand out or stash a booking
// without sharing the history and equipment slices.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	out := *b
	if b.History != nil {
		out.History = make([]TransitionEntry, len(b.History))
		copy(out.History, b.History)
	}
	if b.Equipment != nil {
		out.Equipment = make([]string, len(b.Equipment))
		copy(out.Equipment, b.Equipment)
	}
	return &out
}

// ValidateInterval checks the temporal invariants: end after start, both on
// the booking date, a positive whole-hour duration. It rejects before any
// overlap test runs.
func (b *Booking) ValidateInterval() error {
	return ValidateInterval(b.Date, b.StartTime, b.EndTime)
}

// ValidateInterval rejects inverted, zero-length, fractional-hour or
// off-date intervals with ErrValidation.
func ValidateInterval(date, start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: end_time must be after start_time", ErrValidation)
	}
	if end.Sub(start)%time.Hour != 0 {
		return fmt.Errorf("%w: duration must be a whole number of hours", ErrValidation)
	}
	day := DayOf(start)
	if !date.IsZero() && !DayOf(date).Equal(day) {
		return fmt.Errorf("%w: start_time is not on the booking date", ErrValidation)
	}
	if end.After(day.Add(24 * time.Hour)) {
		return fmt.Errorf("%w: interval crosses the booking date", ErrValidation)
	}
	return nil
}

// DayOf truncates t to midnight UTC of its calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
