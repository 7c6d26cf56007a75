package e2e

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"studioboard/internal/api"
	"studioboard/internal/database"
	"studioboard/internal/domain"
	"studioboard/internal/modules/board"
	"studioboard/internal/modules/pricing"
	"studioboard/internal/modules/realtime"
	jwtsvc "studioboard/internal/pkg/jwt"
	"studioboard/internal/server"
)

const (
	testEmail    = "operator@test.local"
	testPassword = "secret123"
)

var dbSeq atomic.Int64

type testEnv struct {
	srv    *httptest.Server
	token  string
	client *api.Client
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/events"
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	dsn := fmt.Sprintf("file:e2e%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := database.Connect(dsn)
	require.NoError(t, err)
	require.NoError(t, server.AutoMigrate(db))

	repo := server.NewRepository(db)
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, repo.CreateOperator(context.Background(), testEmail, string(hash), "Test Operator", "operator"))

	jwt := jwtsvc.New("e2e-test-secret", time.Hour)
	hub := server.NewHub(log)
	svc := server.NewService(repo, pricing.NewCalculator(pricing.Default()), hub, 9, 21, log)
	handler := server.NewHandler(svc, hub, jwt, log)

	srv := httptest.NewServer(server.NewRouter(handler, jwt, log))
	t.Cleanup(srv.Close)

	token, err := api.Login(context.Background(), srv.URL, testEmail, testPassword)
	require.NoError(t, err)

	return &testEnv{
		srv:    srv,
		token:  token,
		client: api.NewClient(srv.URL, api.StaticToken(token), 5*time.Second, log),
	}
}

func testDay() time.Time {
	return domain.DayOf(time.Now().UTC().Add(48 * time.Hour))
}

func createReq(day time.Time, startHour, hours int) board.CreateRequest {
	start := day.Add(time.Duration(startHour) * time.Hour)
	return board.CreateRequest{
		Space:       domain.SpaceMainStudio,
		StartTime:   start,
		EndTime:     start.Add(time.Duration(hours) * time.Hour),
		ClientName:  "Test Client",
		ClientPhone: "+77010000000",
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	_, err := api.Login(context.Background(), env.srv.URL, testEmail, "wrong-password")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCreateConflictAndAdjacency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := testDay()

	first, err := env.client.CreateBooking(ctx, createReq(day, 10, 2))
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, first.State)
	assert.Equal(t, int64(1), first.Version)
	assert.NotEmpty(t, first.Reference)
	require.Len(t, first.History, 1)
	assert.Equal(t, "created", first.History[0].Reason)

	// 11:00-13:00 overlaps 10:00-12:00.
	_, err = env.client.CreateBooking(ctx, createReq(day, 11, 2))
	require.ErrorIs(t, err, domain.ErrConflict)

	// 12:00-14:00 touches but does not overlap.
	second, err := env.client.CreateBooking(ctx, createReq(day, 12, 2))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// Same interval in another space is free.
	req := createReq(day, 10, 2)
	req.Space = domain.SpaceSmallStudio
	_, err = env.client.CreateBooking(ctx, req)
	require.NoError(t, err)

	list, err := env.client.ListBookings(ctx, day, domain.SpaceMainStudio)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := testDay()

	b, err := env.client.CreateBooking(ctx, createReq(day, 10, 2))
	require.NoError(t, err)

	b, err = env.client.TransitionBooking(ctx, b.ID, b.Version, domain.StateConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateConfirmed, b.State)
	assert.Equal(t, int64(2), b.Version)

	// Skipping confirmed entirely is rejected.
	_, err = env.client.TransitionBooking(ctx, b.ID, b.Version, domain.StatePending, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	b, err = env.client.TransitionBooking(ctx, b.ID, b.Version, domain.StateInProgress, "")
	require.NoError(t, err)
	b, err = env.client.TransitionBooking(ctx, b.ID, b.Version, domain.StateCompleted, "")
	require.NoError(t, err)
	assert.True(t, b.State.Terminal())
	assert.Len(t, b.History, 4)

	// Terminal bookings accept nothing.
	_, err = env.client.TransitionBooking(ctx, b.ID, b.Version, domain.StateCancelled, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	// A cancelled booking frees its interval for new bookings.
	other, err := env.client.CreateBooking(ctx, createReq(day, 14, 2))
	require.NoError(t, err)
	_, err = env.client.TransitionBooking(ctx, other.ID, other.Version, domain.StateCancelled, "client request")
	require.NoError(t, err)
	_, err = env.client.CreateBooking(ctx, createReq(day, 14, 2))
	require.NoError(t, err)
}

func TestStaleVersionOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b, err := env.client.CreateBooking(ctx, createReq(testDay(), 10, 2))
	require.NoError(t, err)

	_, err = env.client.TransitionBooking(ctx, b.ID, b.Version, domain.StateConfirmed, "")
	require.NoError(t, err)

	// Replaying with the pre-transition version must be rejected.
	_, err = env.client.TransitionBooking(ctx, b.ID, b.Version, domain.StateConfirmed, "")
	require.ErrorIs(t, err, domain.ErrStaleVersion)
}

func TestBoardFollowsServerEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := testDay()

	store := board.NewStore()
	coord := board.NewCoordinator(store, env.client, board.Config{Logger: zap.NewNop()})

	manager := realtime.New(realtime.Config{
		URL:               env.wsURL(),
		Token:             func() (string, error) { return env.token, nil },
		HeartbeatInterval: time.Second,
		HeartbeatTimeout:  time.Second,
		BackoffBase:       10 * time.Millisecond,
	})
	for _, typ := range []domain.EventType{
		domain.EventBookingCreated,
		domain.EventBookingUpdated,
		domain.EventBookingStateChanged,
		domain.EventBookingCancelled,
	} {
		manager.Subscribe(typ, coord.ApplyEvent)
	}
	manager.OnConnect(func() {
		_ = coord.Resync(context.Background(), day, "")
	})
	require.NoError(t, manager.Connect())
	t.Cleanup(manager.Disconnect)

	require.Eventually(t, func() bool {
		return manager.State() == realtime.StateConnected
	}, 3*time.Second, 10*time.Millisecond)

	// A booking created outside the board shows up through the event stream.
	created, err := env.client.CreateBooking(ctx, createReq(day, 10, 2))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := store.Get(created.ID)
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	// An optimistic move through the coordinator settles on the server version.
	require.NoError(t, coord.Move(ctx, created.ID, domain.StateConfirmed, "operator", ""))
	got, ok := store.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StateConfirmed, got.State)
	assert.Equal(t, int64(2), got.Version)

	// The echoed push for the same change must not double-apply.
	time.Sleep(100 * time.Millisecond)
	got, ok = store.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Version)
	assert.Len(t, got.History, 2)
}

func TestBoardRollsBackOnStaleVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := testDay()

	created, err := env.client.CreateBooking(ctx, createReq(day, 10, 2))
	require.NoError(t, err)

	// Seed the board without a live event stream, then let the server move
	// ahead so the local copy goes stale.
	var rejected atomic.Int64
	store := board.NewStore()
	coord := board.NewCoordinator(store, env.client, board.Config{
		Logger: zap.NewNop(),
		OnError: func(bookingID int64, err error) {
			if assert.ErrorIs(t, err, domain.ErrStaleVersion) {
				rejected.Add(1)
			}
		},
	})
	require.NoError(t, coord.Resync(ctx, day, ""))

	_, err = env.client.TransitionBooking(ctx, created.ID, created.Version, domain.StateConfirmed, "")
	require.NoError(t, err)

	err = coord.Move(ctx, created.ID, domain.StateCancelled, "operator", "")
	require.ErrorIs(t, err, domain.ErrStaleVersion)
	assert.Equal(t, int64(1), rejected.Load())

	// The optimistic change was rolled back to the last synced snapshot.
	got, ok := store.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatePending, got.State)
	assert.Equal(t, int64(1), got.Version)

	// After a resync the board converges on the server state.
	require.NoError(t, coord.Resync(ctx, day, ""))
	got, ok = store.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StateConfirmed, got.State)
	assert.Equal(t, int64(2), got.Version)
}

func TestUpdateRepricesAndChecksConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := testDay()

	b, err := env.client.CreateBooking(ctx, createReq(day, 10, 2))
	require.NoError(t, err)
	_, err = env.client.CreateBooking(ctx, createReq(day, 14, 2))
	require.NoError(t, err)

	// Moving onto an occupied interval is a conflict.
	start := day.Add(15 * time.Hour)
	end := start.Add(time.Hour)
	_, err = env.client.UpdateBooking(ctx, b.ID, b.Version, board.UpdateRequest{
		StartTime: &start,
		EndTime:   &end,
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	// Adding equipment reprices the booking.
	equipment := []string{"lighting_kit"}
	updated, err := env.client.UpdateBooking(ctx, b.ID, b.Version, board.UpdateRequest{
		Equipment: &equipment,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Greater(t, updated.Price.Equipment, 0.0)
	assert.Equal(t, updated.Price.Total, updated.Price.Base+updated.Price.Equipment-updated.Price.Discount)
}
