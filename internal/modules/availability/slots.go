package availability

import (
	"sort"
	"time"

	"studioboard/internal/domain"
)

type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FreeSlots returns the gaps inside the working window [open, close) after
// removing the intervals of all non-terminal bookings in the given space.
func FreeSlots(space domain.Space, open, close time.Time, existing []domain.Booking) []Slot {
	busy := make([]Slot, 0, len(existing))
	for _, b := range existing {
		if b.Space != space || b.State.Terminal() {
			continue
		}
		busy = append(busy, Slot{Start: b.StartTime, End: b.EndTime})
	}
	return subtractBusy(open, close, busy)
}

func subtractBusy(open, close time.Time, busy []Slot) []Slot {
	if len(busy) == 0 {
		return []Slot{{Start: open, End: close}}
	}

	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	// Clamp to the window and merge overlapping or touching intervals.
	merged := make([]Slot, 0, len(busy))
	for _, s := range busy {
		if s.End.Before(open) || !s.Start.Before(close) {
			continue
		}
		if s.Start.Before(open) {
			s.Start = open
		}
		if s.End.After(close) {
			s.End = close
		}
		if !s.End.After(s.Start) {
			continue
		}

		if len(merged) == 0 {
			merged = append(merged, s)
			continue
		}
		last := merged[len(merged)-1]
		if !s.Start.After(last.End) {
			if s.End.After(last.End) {
				last.End = s.End
				merged[len(merged)-1] = last
			}
		} else {
			merged = append(merged, s)
		}
	}

	cur := open
	out := make([]Slot, 0)
	for _, b := range merged {
		if b.Start.After(cur) {
			out = append(out, Slot{Start: cur, End: b.Start})
		}
		if b.End.After(cur) {
			cur = b.End
		}
		if !cur.Before(close) {
			break
		}
	}
	if cur.Before(close) {
		out = append(out, Slot{Start: cur, End: close})
	}
	return out
}
