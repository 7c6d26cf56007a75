// Package lifecycle is the single source of truth for which booking state
// transitions are allowed. It is pure and synchronous: the board coordinator
// uses it for optimistic validation and the server uses the same table for
// authoritative validation.
package lifecycle

import (
	"fmt"
	"time"

	"studioboard/internal/domain"
)

var transitions = map[domain.BookingState][]domain.BookingState{
	domain.StateDraft:      {domain.StatePending, domain.StateCancelled},
	domain.StatePending:    {domain.StateConfirmed, domain.StateCancelled},
	domain.StateConfirmed:  {domain.StateInProgress, domain.StateNoShow, domain.StateCancelled},
	domain.StateInProgress: {domain.StateCompleted, domain.StateCancelled},
	domain.StateCompleted:  {},
	domain.StateCancelled:  {},
	domain.StateNoShow:     {},
}

// CanTransition reports whether target is in from's edge set.
func CanTransition(from, target domain.BookingState) bool {
	for _, t := range transitions[from] {
		if t == target {
			return true
		}
	}
	return false
}

// AllowedTargets returns a copy of the edge set for the given state.
func AllowedTargets(from domain.BookingState) []domain.BookingState {
	edges := transitions[from]
	out := make([]domain.BookingState, len(edges))
	copy(out, edges)
	return out
}

// Transition validates and applies a state change. On success it returns a
// new booking with the state advanced and exactly one history entry
// appended; the input booking is never mutated. Price and interval fields
// are untouched. An invalid edge yields domain.ErrInvalidTransition.
func Transition(b *domain.Booking, target domain.BookingState, actor, reason string, at time.Time) (*domain.Booking, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", domain.ErrInvalidTransition, target)
	}
	if !CanTransition(b.State, target) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.State, target)
	}

	out := b.Clone()
	out.History = append(out.History, domain.TransitionEntry{
		From:   b.State,
		To:     target,
		At:     at,
		Actor:  actor,
		Reason: reason,
	})
	out.State = target
	return out, nil
}

// NewHistory builds the initial history of a freshly created booking. The
// first entry records the creation state on both sides, so every later
// entry's from_state chains off the previous entry's to_state.
func NewHistory(initial domain.BookingState, actor string, at time.Time) []domain.TransitionEntry {
	return []domain.TransitionEntry{{
		From:   initial,
		To:     initial,
		At:     at,
		Actor:  actor,
		Reason: "created",
	}}
}
