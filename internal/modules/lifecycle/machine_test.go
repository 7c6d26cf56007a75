package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studioboard/internal/domain"
)

var allStates = []domain.BookingState{
	domain.StateDraft,
	domain.StatePending,
	domain.StateConfirmed,
	domain.StateInProgress,
	domain.StateCompleted,
	domain.StateCancelled,
	domain.StateNoShow,
}

func testBooking(state domain.BookingState) *domain.Booking {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	return &domain.Booking{
		ID:      42,
		State:   state,
		History: NewHistory(state, "test", now),
		Version: 3,
	}
}

func TestTransition_AllowedEdges(t *testing.T) {
	cases := []struct {
		from, to domain.BookingState
	}{
		{domain.StateDraft, domain.StatePending},
		{domain.StateDraft, domain.StateCancelled},
		{domain.StatePending, domain.StateConfirmed},
		{domain.StatePending, domain.StateCancelled},
		{domain.StateConfirmed, domain.StateInProgress},
		{domain.StateConfirmed, domain.StateNoShow},
		{domain.StateConfirmed, domain.StateCancelled},
		{domain.StateInProgress, domain.StateCompleted},
		{domain.StateInProgress, domain.StateCancelled},
	}

	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	for _, tc := range cases {
		b := testBooking(tc.from)
		out, err := Transition(b, tc.to, "operator", "", at)
		require.NoError(t, err, "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.to, out.State)
		require.Len(t, out.History, 2)
		assert.Equal(t, tc.from, out.History[1].From)
		assert.Equal(t, tc.to, out.History[1].To)
		assert.Equal(t, at, out.History[1].At)
	}
}

func TestTransition_RejectsEverythingElse(t *testing.T) {
	at := time.Now().UTC()
	for _, from := range allStates {
		for _, to := range allStates {
			if CanTransition(from, to) {
				continue
			}
			b := testBooking(from)
			out, err := Transition(b, to, "", "", at)
			assert.ErrorIs(t, err, domain.ErrInvalidTransition, "%s -> %s", from, to)
			assert.Nil(t, out)
			// The input booking must be untouched: no history appended.
			assert.Equal(t, from, b.State)
			assert.Len(t, b.History, 1)
		}
	}
}

func TestTransition_TerminalStatesHaveNoEdges(t *testing.T) {
	for _, s := range allStates {
		if s.Terminal() {
			assert.Empty(t, AllowedTargets(s), "terminal state %s", s)
		} else {
			assert.NotEmpty(t, AllowedTargets(s), "non-terminal state %s", s)
		}
	}
}

func TestTransition_UnknownTargetState(t *testing.T) {
	b := testBooking(domain.StatePending)
	_, err := Transition(b, domain.BookingState("archived"), "", "", time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTransition_DoesNotShareHistoryWithInput(t *testing.T) {
	b := testBooking(domain.StatePending)
	out, err := Transition(b, domain.StateConfirmed, "op", "deposit paid", time.Now())
	require.NoError(t, err)

	out.History[0].Reason = "mutated"
	assert.Equal(t, "created", b.History[0].Reason)
	assert.Equal(t, domain.StatePending, b.State)
}

func TestHistoryChains(t *testing.T) {
	at := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	b := testBooking(domain.StateDraft)

	var err error
	for _, next := range []domain.BookingState{
		domain.StatePending, domain.StateConfirmed,
		domain.StateInProgress, domain.StateCompleted,
	} {
		at = at.Add(time.Hour)
		b, err = Transition(b, next, "op", "", at)
		require.NoError(t, err)
	}

	require.Len(t, b.History, 5)
	for i := 1; i < len(b.History); i++ {
		assert.Equal(t, b.History[i-1].To, b.History[i].From, "entry %d", i)
	}
	assert.Equal(t, domain.StateCompleted, b.State)
}
