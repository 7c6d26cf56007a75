package board

import (
	"sort"
	"sync"

	"studioboard/internal/domain"
)

// Store is the operator's local view of the board, keyed by booking id.
// Consumers only get deep-copied snapshots; every mutation goes through the
// Coordinator (same package), which preserves the snapshot/rollback
// invariant.
type Store struct {
	mu    sync.RWMutex
	items map[int64]*domain.Booking
}

func NewStore() *Store {
	return &Store{items: make(map[int64]*domain.Booking)}
}

// Get returns a copy of one booking.
func (s *Store) Get(id int64) (*domain.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// Snapshot returns copies of all bookings, ordered by start time then id.
func (s *Store) Snapshot() []domain.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Booking, 0, len(s.items))
	for _, b := range s.items {
		out = append(out, *b.Clone())
	}
	sortBookings(out)
	return out
}

// ByState returns copies of the bookings in one board column.
func (s *Store) ByState(state domain.BookingState) []domain.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Booking, 0)
	for _, b := range s.items {
		if b.State == state {
			out = append(out, *b.Clone())
		}
	}
	sortBookings(out)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func sortBookings(list []domain.Booking) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartTime.Equal(list[j].StartTime) {
			return list[i].StartTime.Before(list[j].StartTime)
		}
		return list[i].ID < list[j].ID
	})
}

func (s *Store) put(b *domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[b.ID] = b.Clone()
}

func (s *Store) get(id int64) (*domain.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// replaceExcept swaps in an authoritative listing, keeping the local
// optimistic entries whose ids are in keep.
func (s *Store) replaceExcept(list []domain.Booking, keep map[int64]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[int64]*domain.Booking, len(list))
	for id, b := range s.items {
		if keep[id] {
			next[id] = b
		}
	}
	for i := range list {
		if keep[list[i].ID] {
			continue
		}
		next[list[i].ID] = list[i].Clone()
	}
	s.items = next
}
