package board

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studioboard/internal/domain"
	"studioboard/internal/modules/lifecycle"
)

type MockCommandClient struct {
	mock.Mock
}

func (m *MockCommandClient) CreateBooking(ctx context.Context, req CreateRequest) (*domain.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockCommandClient) UpdateBooking(ctx context.Context, id, expectedVersion int64, req UpdateRequest) (*domain.Booking, error) {
	args := m.Called(ctx, id, expectedVersion, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockCommandClient) TransitionBooking(ctx context.Context, id, expectedVersion int64, target domain.BookingState, reason string) (*domain.Booking, error) {
	args := m.Called(ctx, id, expectedVersion, target, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockCommandClient) ListBookings(ctx context.Context, date time.Time, space domain.Space) ([]domain.Booking, error) {
	args := m.Called(ctx, date, space)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func hour(h int) time.Time {
	return time.Date(2024, 1, 15, h, 0, 0, 0, time.UTC)
}

func seedBooking(id int64, state domain.BookingState, startHour, endHour int) *domain.Booking {
	return &domain.Booking{
		ID:          id,
		Reference:   "BK-TEST",
		Space:       domain.SpaceMainStudio,
		Date:        domain.DayOf(hour(startHour)),
		StartTime:   hour(startHour),
		EndTime:     hour(endHour),
		State:       state,
		History:     lifecycle.NewHistory(state, "seed", hour(8)),
		ClientName:  "Aigerim",
		ClientPhone: "+77010000001",
		Version:     1,
	}
}

func newTestCoordinator(client CommandClient, onError NotifyFunc) *Coordinator {
	store := NewStore()
	return NewCoordinator(store, client, Config{
		CommandTimeout: time.Second,
		OnError:        onError,
	})
}

func TestMove_SuccessAdoptsServerEntity(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)

	local := seedBooking(1, domain.StatePending, 10, 12)
	co.store.put(local)

	confirmed := local.Clone()
	confirmed.State = domain.StateConfirmed
	confirmed.History = append(confirmed.History, domain.TransitionEntry{
		From: domain.StatePending, To: domain.StateConfirmed, At: hour(9), Actor: "server",
	})
	confirmed.Version = 2
	confirmed.Notes = "server recomputed"

	client.On("TransitionBooking", mock.Anything, int64(1), int64(1),
		domain.StateConfirmed, "deposit paid").Return(confirmed, nil)

	err := co.Move(context.Background(), 1, domain.StateConfirmed, "op", "deposit paid")
	require.NoError(t, err)

	got, ok := co.Store().Get(1)
	require.True(t, ok)
	assert.Equal(t, domain.StateConfirmed, got.State)
	assert.Equal(t, int64(2), got.Version)
	// Server-computed fields overwrite the optimistic guess.
	assert.Equal(t, "server recomputed", got.Notes)
	assert.Equal(t, "server", got.History[1].Actor)
	client.AssertExpectations(t)
}

func TestMove_InvalidTransitionNeverReachesNetwork(t *testing.T) {
	client := new(MockCommandClient)
	var notified int32
	co := newTestCoordinator(client, func(int64, error) { atomic.AddInt32(&notified, 1) })

	co.store.put(seedBooking(1, domain.StateCompleted, 10, 12))
	before := co.Store().Snapshot()

	err := co.Move(context.Background(), 1, domain.StateConfirmed, "op", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Equal(t, before, co.Store().Snapshot(), "no local mutation on sync rejection")
	assert.Zero(t, atomic.LoadInt32(&notified), "sync rejections are returned, not notified")
	client.AssertNotCalled(t, "TransitionBooking",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMove_FailureRollsBackExactly(t *testing.T) {
	client := new(MockCommandClient)
	var notified int32
	co := newTestCoordinator(client, func(id int64, err error) {
		atomic.AddInt32(&notified, 1)
		assert.Equal(t, int64(1), id)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	co.store.put(seedBooking(1, domain.StatePending, 10, 12))
	co.store.put(seedBooking(2, domain.StateConfirmed, 14, 16))
	before := co.Store().Snapshot()

	client.On("TransitionBooking", mock.Anything, int64(1), int64(1),
		domain.StateConfirmed, "").Return(nil, domain.ErrConflict)

	err := co.Move(context.Background(), 1, domain.StateConfirmed, "op", "")
	assert.ErrorIs(t, err, domain.ErrConflict)

	// Rollback law: the collection is structurally identical to the
	// pre-mutation state, and unrelated items were never touched.
	assert.Equal(t, before, co.Store().Snapshot())
	assert.Equal(t, int32(1), atomic.LoadInt32(&notified), "exactly one error notification")
}

func TestMove_EventsForInFlightBookingAreBuffered(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)
	co.store.put(seedBooking(1, domain.StatePending, 10, 12))

	confirmed := seedBooking(1, domain.StateConfirmed, 10, 12)
	confirmed.Version = 2

	later := seedBooking(1, domain.StateCancelled, 10, 12)
	later.Version = 3

	client.On("TransitionBooking", mock.Anything, int64(1), int64(1),
		domain.StateConfirmed, "").Run(func(mock.Arguments) {
		// Arrives over the push channel while the command is in flight:
		// first the idempotent echo of this very change, then a newer
		// concurrent cancellation by another operator.
		co.ApplyEvent(domain.Event{
			Type: domain.EventBookingStateChanged, BookingID: 1,
			Version: 2, Booking: confirmed,
		})
		co.ApplyEvent(domain.Event{
			Type: domain.EventBookingCancelled, BookingID: 1,
			Version: 3, ToState: domain.StateCancelled, Booking: later,
		})
		// Neither may touch the store before the command resolves.
		cur, _ := co.Store().Get(1)
		assert.Equal(t, int64(1), cur.Version)
	}).Return(confirmed, nil)

	require.NoError(t, co.Move(context.Background(), 1, domain.StateConfirmed, "op", ""))

	got, _ := co.Store().Get(1)
	assert.Equal(t, domain.StateCancelled, got.State, "newer buffered event applied after resolve")
	assert.Equal(t, int64(3), got.Version)
}

func TestMove_CommandResponseWinsOverDuplicateEvent(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)
	co.store.put(seedBooking(1, domain.StatePending, 10, 12))

	confirmed := seedBooking(1, domain.StateConfirmed, 10, 12)
	confirmed.Version = 2
	confirmed.Notes = "authoritative"

	echo := confirmed.Clone()
	echo.Notes = "from event"

	client.On("TransitionBooking", mock.Anything, int64(1), int64(1),
		domain.StateConfirmed, "").Run(func(mock.Arguments) {
		co.ApplyEvent(domain.Event{
			Type: domain.EventBookingStateChanged, BookingID: 1,
			Version: 2, Booking: echo,
		})
	}).Return(confirmed, nil)

	require.NoError(t, co.Move(context.Background(), 1, domain.StateConfirmed, "op", ""))

	got, _ := co.Store().Get(1)
	assert.Equal(t, "authoritative", got.Notes, "same-version event must not double-apply")
	assert.Equal(t, int64(2), got.Version)
}

func TestMove_SecondMutationWhileInFlightRejected(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)
	co.store.put(seedBooking(1, domain.StatePending, 10, 12))

	release := make(chan struct{})
	confirmed := seedBooking(1, domain.StateConfirmed, 10, 12)
	confirmed.Version = 2
	client.On("TransitionBooking", mock.Anything, int64(1), int64(1),
		domain.StateConfirmed, "").Run(func(mock.Arguments) {
		<-release
	}).Return(confirmed, nil)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- co.Move(context.Background(), 1, domain.StateConfirmed, "op", "")
	}()

	require.Eventually(t, func() bool {
		b, _ := co.Store().Get(1)
		return b.State == domain.StateConfirmed
	}, time.Second, time.Millisecond)

	err := co.Move(context.Background(), 1, domain.StateCancelled, "op", "changed my mind")
	assert.ErrorIs(t, err, ErrMutationInFlight)

	close(release)
	require.NoError(t, <-firstDone)
}

func TestApplyEvent_DuplicateDeliveryIsIdempotent(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)
	co.store.put(seedBooking(1, domain.StatePending, 10, 12))

	snap := seedBooking(1, domain.StateConfirmed, 10, 12)
	snap.Version = 2
	ev := domain.Event{
		Type: domain.EventBookingStateChanged, BookingID: 1,
		Version: 2, FromState: domain.StatePending,
		ToState: domain.StateConfirmed, Booking: snap,
	}

	co.ApplyEvent(ev)
	after := co.Store().Snapshot()

	co.ApplyEvent(ev)
	assert.Equal(t, after, co.Store().Snapshot(), "second delivery changed the booking")
}

func TestApplyEvent_CreatedInsertsUnknownBooking(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)

	snap := seedBooking(9, domain.StatePending, 15, 17)
	co.ApplyEvent(domain.Event{
		Type: domain.EventBookingCreated, BookingID: 9, Version: 1, Booking: snap,
	})

	got, ok := co.Store().Get(9)
	require.True(t, ok)
	assert.Equal(t, domain.StatePending, got.State)
}

func TestApplyEvent_StaleEventSkipped(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)

	cur := seedBooking(1, domain.StateConfirmed, 10, 12)
	cur.Version = 5
	co.store.put(cur)

	old := seedBooking(1, domain.StatePending, 10, 12)
	old.Version = 3
	co.ApplyEvent(domain.Event{
		Type: domain.EventBookingUpdated, BookingID: 1, Version: 3, Booking: old,
	})

	got, _ := co.Store().Get(1)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, domain.StateConfirmed, got.State)
}

func TestApplyEvent_SnapshotlessUpdateAppliesFieldDiff(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)
	co.store.put(seedBooking(1, domain.StatePending, 10, 12))

	co.ApplyEvent(domain.Event{
		Type: domain.EventBookingUpdated, BookingID: 1, Version: 2,
		Fields: map[string]any{"client_name": "Renamed Client", "people": 4},
	})

	got, ok := co.Store().Get(1)
	require.True(t, ok)
	assert.Equal(t, "Renamed Client", got.ClientName)
	assert.Equal(t, 4, got.People)
	assert.Equal(t, int64(2), got.Version)

	// The version advanced with the diff, so the late snapshot for the same
	// change is a duplicate.
	snap := seedBooking(1, domain.StatePending, 10, 12)
	snap.ClientName = "Renamed Client"
	snap.People = 4
	snap.Version = 2
	co.ApplyEvent(domain.Event{
		Type: domain.EventBookingUpdated, BookingID: 1, Version: 2, Booking: snap,
	})
	got, _ = co.Store().Get(1)
	assert.Equal(t, "Renamed Client", got.ClientName)
}

func TestApplyEvent_UndecodableDiffDoesNotBurnVersion(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)
	co.store.put(seedBooking(1, domain.StatePending, 10, 12))

	co.ApplyEvent(domain.Event{
		Type: domain.EventBookingUpdated, BookingID: 1, Version: 2,
		Fields: map[string]any{"people": "not-a-number"},
	})

	got, _ := co.Store().Get(1)
	assert.Equal(t, int64(1), got.Version, "unapplied diff must not advance the version")

	// The full snapshot at the same version still lands.
	snap := seedBooking(1, domain.StatePending, 10, 12)
	snap.People = 3
	snap.Version = 2
	co.ApplyEvent(domain.Event{
		Type: domain.EventBookingUpdated, BookingID: 1, Version: 2, Booking: snap,
	})
	got, _ = co.Store().Get(1)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 3, got.People)
}

func TestCreate_LocalConflictNeverReachesNetwork(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)
	co.store.put(seedBooking(1, domain.StateConfirmed, 10, 12))

	_, err := co.Create(context.Background(), CreateRequest{
		Space:       domain.SpaceMainStudio,
		StartTime:   hour(11),
		EndTime:     hour(13),
		ClientName:  "Dana",
		ClientPhone: "+77010000002",
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	client.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestCreate_AdoptsServerEntity(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)

	created := seedBooking(7, domain.StatePending, 12, 14)
	client.On("CreateBooking", mock.Anything, mock.Anything).Return(created, nil)

	out, err := co.Create(context.Background(), CreateRequest{
		Space:       domain.SpaceMainStudio,
		StartTime:   hour(12),
		EndTime:     hour(14),
		ClientName:  "Dana",
		ClientPhone: "+77010000002",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), out.ID)

	got, ok := co.Store().Get(7)
	require.True(t, ok)
	assert.Equal(t, created.Reference, got.Reference)
}

func TestResync_KeepsInFlightEntries(t *testing.T) {
	client := new(MockCommandClient)
	co := newTestCoordinator(client, nil)
	co.store.put(seedBooking(1, domain.StatePending, 10, 12))

	release := make(chan struct{})
	confirmed := seedBooking(1, domain.StateConfirmed, 10, 12)
	confirmed.Version = 2
	client.On("TransitionBooking", mock.Anything, int64(1), int64(1),
		domain.StateConfirmed, "").Run(func(mock.Arguments) {
		<-release
	}).Return(confirmed, nil)

	serverView := []domain.Booking{
		*seedBooking(1, domain.StatePending, 10, 12), // stale server row
		*seedBooking(2, domain.StateConfirmed, 14, 16),
	}
	client.On("ListBookings", mock.Anything, mock.Anything, domain.Space("")).
		Return(serverView, nil)

	done := make(chan error, 1)
	go func() { done <- co.Move(context.Background(), 1, domain.StateConfirmed, "op", "") }()
	require.Eventually(t, func() bool {
		b, _ := co.Store().Get(1)
		return b.State == domain.StateConfirmed
	}, time.Second, time.Millisecond)

	require.NoError(t, co.Resync(context.Background(), hour(0), ""))

	// The in-flight optimistic entry survives the resync; the listing fills
	// in everything else.
	got, _ := co.Store().Get(1)
	assert.Equal(t, domain.StateConfirmed, got.State)
	_, ok := co.Store().Get(2)
	assert.True(t, ok)

	close(release)
	require.NoError(t, <-done)
}

func TestUpdate_RollbackOnStaleVersion(t *testing.T) {
	client := new(MockCommandClient)
	var notified int32
	co := newTestCoordinator(client, func(int64, error) { atomic.AddInt32(&notified, 1) })

	co.store.put(seedBooking(1, domain.StatePending, 10, 12))
	before := co.Store().Snapshot()

	client.On("UpdateBooking", mock.Anything, int64(1), int64(1), mock.Anything).
		Return(nil, domain.ErrStaleVersion)

	name := "Updated Name"
	err := co.Update(context.Background(), 1, UpdateRequest{ClientName: &name})
	assert.ErrorIs(t, err, domain.ErrStaleVersion)
	assert.Equal(t, before, co.Store().Snapshot())
	assert.Equal(t, int32(1), atomic.LoadInt32(&notified))
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	store := NewStore()
	store.put(seedBooking(1, domain.StatePending, 10, 12))

	snap, _ := store.Get(1)
	snap.State = domain.StateCancelled
	snap.History[0].Reason = "mutated"

	fresh, _ := store.Get(1)
	assert.Equal(t, domain.StatePending, fresh.State)
	assert.Equal(t, "created", fresh.History[0].Reason)
}
