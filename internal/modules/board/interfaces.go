package board

import (
	"context"
	"time"

	"studioboard/internal/domain"
)

// CommandClient issues booking commands to the authoritative server. The
// REST client in internal/api implements it; tests use a mock.
type CommandClient interface {
	CreateBooking(ctx context.Context, req CreateRequest) (*domain.Booking, error)
	UpdateBooking(ctx context.Context, id, expectedVersion int64, req UpdateRequest) (*domain.Booking, error)
	TransitionBooking(ctx context.Context, id, expectedVersion int64, target domain.BookingState, reason string) (*domain.Booking, error)
	ListBookings(ctx context.Context, date time.Time, space domain.Space) ([]domain.Booking, error)
}

// CreateRequest carries the client-supplied fields of a new booking. The
// server assigns id, reference, price and version.
type CreateRequest struct {
	Space     domain.Space `json:"space"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`

	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	ClientEmail string `json:"client_email,omitempty"`

	Equipment []string `json:"equipment,omitempty"`
	People    int      `json:"people,omitempty"`
	Discount  float64  `json:"discount,omitempty"`
	Notes     string   `json:"notes,omitempty"`

	// Draft creates the booking in draft instead of pending.
	Draft bool `json:"draft,omitempty"`
}

// UpdateRequest is a partial field update; nil means leave unchanged.
type UpdateRequest struct {
	Space     *domain.Space `json:"space,omitempty"`
	StartTime *time.Time    `json:"start_time,omitempty"`
	EndTime   *time.Time    `json:"end_time,omitempty"`

	ClientName  *string   `json:"client_name,omitempty"`
	ClientPhone *string   `json:"client_phone,omitempty"`
	ClientEmail *string   `json:"client_email,omitempty"`
	Equipment   *[]string `json:"equipment,omitempty"`
	People      *int      `json:"people,omitempty"`
	Discount    *float64  `json:"discount,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
}
