// Package availability decides whether a requested interval is free for a
// space, given the set of existing bookings. Intervals are half-open
// [start, end): back-to-back bookings never conflict.
package availability

import (
	"fmt"
	"time"

	"studioboard/internal/domain"
)

// Result carries the availability verdict plus the conflicting bookings for
// display. Conflicts is empty when Available is true.
type Result struct {
	Available bool             `json:"available"`
	Conflicts []domain.Booking `json:"conflicts"`
}

// Check reports whether [start, end) is free in the given space. Only
// bookings in the same space and in a non-terminal state can conflict.
// Invalid intervals are rejected with domain.ErrValidation before any
// overlap test runs.
func Check(space domain.Space, start, end time.Time, existing []domain.Booking) (Result, error) {
	if !space.Valid() {
		return Result{}, fmt.Errorf("%w: unknown space %q", domain.ErrValidation, space)
	}
	if err := domain.ValidateInterval(domain.DayOf(start), start, end); err != nil {
		return Result{}, err
	}

	res := Result{Available: true, Conflicts: []domain.Booking{}}
	for _, other := range existing {
		if other.Space != space || other.State.Terminal() {
			continue
		}
		if Overlaps(start, end, other.StartTime, other.EndTime) {
			res.Available = false
			res.Conflicts = append(res.Conflicts, other)
		}
	}
	return res, nil
}

// Overlaps tests half-open interval overlap. Touching endpoints
// (aStart == bEnd or bStart == aEnd) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
