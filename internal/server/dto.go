package server

import "time"

type createBookingRequest struct {
	Space     string    `json:"space" binding:"required"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`

	ClientName  string   `json:"client_name" binding:"required"`
	ClientPhone string   `json:"client_phone" binding:"required"`
	ClientEmail string   `json:"client_email" binding:"omitempty,email"`
	Equipment   []string `json:"equipment"`
	People      int      `json:"people" binding:"gte=0"`
	Discount    float64  `json:"discount" binding:"gte=0"`
	Notes       string   `json:"notes"`

	Draft bool `json:"draft"`
}

type updateBookingRequest struct {
	Space     *string    `json:"space"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`

	ClientName  *string   `json:"client_name"`
	ClientPhone *string   `json:"client_phone"`
	ClientEmail *string   `json:"client_email" binding:"omitempty"`
	Equipment   *[]string `json:"equipment"`
	People      *int      `json:"people"`
	Discount    *float64  `json:"discount"`
	Notes       *string   `json:"notes"`

	ExpectedVersion int64 `json:"expected_version"`
}

type transitionRequest struct {
	TargetState     string `json:"target_state" binding:"required"`
	Reason          string `json:"reason"`
	ExpectedVersion int64  `json:"expected_version"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token      string `json:"token"`
	OperatorID int64  `json:"operator_id"`
	Role       string `json:"role"`
}
