// Package board keeps an operator's view of the booking pipeline correct
// under optimistic local mutations, concurrent edits by other operators and
// unreliable event delivery. A mutation is applied locally at once,
// validated first against the lifecycle and availability rules, then
// committed or rolled back when the server command resolves.
package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studioboard/internal/domain"
	"studioboard/internal/modules/availability"
	"studioboard/internal/modules/lifecycle"
	"studioboard/internal/pkg/clock"
)

// ErrMutationInFlight rejects a second local mutation for a booking whose
// previous command has not resolved yet.
var ErrMutationInFlight = errors.New("a mutation for this booking is still in flight")

// NotifyFunc surfaces a rejected command to the UI. It is called exactly
// once per failed mutation, after the rollback has been applied.
type NotifyFunc func(bookingID int64, err error)

type Config struct {
	CommandTimeout time.Duration
	OnError        NotifyFunc
	Clock          clock.Clock
	Logger         *zap.Logger
}

type pendingMutation struct {
	id        string
	bookingID int64
	snapshot  *domain.Booking
	buffered  []domain.Event
}

type Coordinator struct {
	store  *Store
	client CommandClient
	clock  clock.Clock
	log    *zap.Logger

	timeout time.Duration
	onError NotifyFunc

	mu      sync.Mutex
	pending map[int64]*pendingMutation
}

func NewCoordinator(store *Store, client CommandClient, cfg Config) *Coordinator {
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OnError == nil {
		cfg.OnError = func(int64, error) {}
	}
	return &Coordinator{
		store:   store,
		client:  client,
		clock:   cfg.Clock,
		log:     cfg.Logger,
		timeout: cfg.CommandTimeout,
		onError: cfg.OnError,
		pending: make(map[int64]*pendingMutation),
	}
}

// Store exposes the read-only view of the board.
func (c *Coordinator) Store() *Store { return c.store }

// Create validates a booking request locally, issues the create command and
// adopts the server-assigned entity. There is no optimistic insert: the
// booking has no identity until the server assigns one, so nothing needs
// rolling back on failure.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (*domain.Booking, error) {
	if req.ClientName == "" || req.ClientPhone == "" {
		return nil, fmt.Errorf("%w: client name and phone are required", domain.ErrValidation)
	}
	res, err := availability.Check(req.Space, req.StartTime, req.EndTime, c.store.Snapshot())
	if err != nil {
		return nil, err
	}
	if !res.Available {
		return nil, fmt.Errorf("%w: %d overlapping booking(s) in %s",
			domain.ErrConflict, len(res.Conflicts), req.Space)
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	created, err := c.client.CreateBooking(cctx, req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.adoptLocked(created)
	c.mu.Unlock()
	c.log.Info("booking created",
		zap.Int64("booking_id", created.ID), zap.String("reference", created.Reference))
	return created.Clone(), nil
}

// Move performs one optimistic pipeline move: validate the transition,
// snapshot, apply locally, issue the command, then commit the server's
// entity or restore the snapshot. Push events for the same booking that
// arrive while the command is in flight are buffered and applied after it
// resolves.
func (c *Coordinator) Move(ctx context.Context, bookingID int64, target domain.BookingState, actor, reason string) error {
	c.mu.Lock()
	cur, ok := c.store.get(bookingID)
	if !ok {
		c.mu.Unlock()
		return domain.ErrNotFound
	}
	if _, busy := c.pending[bookingID]; busy {
		c.mu.Unlock()
		return ErrMutationInFlight
	}

	// Synchronous validation: an invalid transition never mutates the view
	// and never reaches the network.
	optimistic, err := lifecycle.Transition(cur, target, actor, reason, c.clock.Now())
	if err != nil {
		c.mu.Unlock()
		return err
	}

	p := &pendingMutation{
		id:        uuid.NewString(),
		bookingID: bookingID,
		snapshot:  cur,
	}
	c.pending[bookingID] = p
	c.store.put(optimistic)
	c.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	confirmed, err := c.client.TransitionBooking(cctx, bookingID, cur.Version, target, reason)
	return c.resolve(p, confirmed, err)
}

// Update performs an optimistic field update under the same
// snapshot/commit/rollback protocol as Move. The pricing snapshot is left
// untouched optimistically; the server's recomputed entity replaces the
// guess on success.
func (c *Coordinator) Update(ctx context.Context, bookingID int64, req UpdateRequest) error {
	c.mu.Lock()
	cur, ok := c.store.get(bookingID)
	if !ok {
		c.mu.Unlock()
		return domain.ErrNotFound
	}
	if _, busy := c.pending[bookingID]; busy {
		c.mu.Unlock()
		return ErrMutationInFlight
	}

	optimistic := applyUpdate(cur, req)
	if req.StartTime != nil || req.EndTime != nil || req.Space != nil {
		others := make([]domain.Booking, 0)
		for _, b := range c.store.Snapshot() {
			if b.ID != bookingID {
				others = append(others, b)
			}
		}
		res, err := availability.Check(optimistic.Space, optimistic.StartTime, optimistic.EndTime, others)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		if !res.Available {
			c.mu.Unlock()
			return fmt.Errorf("%w: %d overlapping booking(s) in %s",
				domain.ErrConflict, len(res.Conflicts), optimistic.Space)
		}
	}

	p := &pendingMutation{
		id:        uuid.NewString(),
		bookingID: bookingID,
		snapshot:  cur,
	}
	c.pending[bookingID] = p
	c.store.put(optimistic)
	c.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	confirmed, err := c.client.UpdateBooking(cctx, bookingID, cur.Version, req)
	return c.resolve(p, confirmed, err)
}

// resolve finishes an in-flight mutation: commit the confirmed entity or
// restore the snapshot, then drain the events buffered while it was
// pending. Buffered events are version-guarded, so a push event describing
// the same change as the command's response is an idempotent no-op.
func (c *Coordinator) resolve(p *pendingMutation, confirmed *domain.Booking, cmdErr error) error {
	c.mu.Lock()
	delete(c.pending, p.bookingID)

	if cmdErr != nil {
		// Restore exactly the pre-mutation snapshot for this item only.
		c.store.put(p.snapshot)
		for _, ev := range p.buffered {
			c.applyEventLocked(ev)
		}
		c.mu.Unlock()

		c.log.Warn("command rejected, rolled back",
			zap.Int64("booking_id", p.bookingID),
			zap.String("mutation_id", p.id),
			zap.Error(cmdErr))
		c.onError(p.bookingID, cmdErr)
		return cmdErr
	}

	// The command response is authoritative for this mutation.
	c.adoptLocked(confirmed)
	for _, ev := range p.buffered {
		c.applyEventLocked(ev)
	}
	c.mu.Unlock()
	return nil
}

// ApplyEvent feeds one push event into the board. Events for a booking with
// an unconfirmed local mutation are buffered until the in-flight command
// resolves, so server data never interleaves with an optimistic guess.
func (c *Coordinator) ApplyEvent(ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, busy := c.pending[ev.BookingID]; busy {
		p.buffered = append(p.buffered, ev)
		return
	}
	c.applyEventLocked(ev)
}

// Resync replaces the board with an authoritative listing, keeping local
// optimistic entries whose commands are still in flight. Wire it to the
// sync manager's OnConnect hook: events may have been lost while the
// channel was down.
func (c *Coordinator) Resync(ctx context.Context, date time.Time, space domain.Space) error {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	list, err := c.client.ListBookings(cctx, date, space)
	if err != nil {
		return err
	}

	c.mu.Lock()
	keep := make(map[int64]bool, len(c.pending))
	for id := range c.pending {
		keep[id] = true
	}
	c.store.replaceExcept(list, keep)
	c.mu.Unlock()

	c.log.Info("board resynced", zap.Int("bookings", len(list)))
	return nil
}

// applyEventLocked applies a server event to the store. The version guard
// makes duplicate delivery idempotent: an event at or below the known
// version changes nothing.
func (c *Coordinator) applyEventLocked(ev domain.Event) {
	cur, ok := c.store.get(ev.BookingID)
	if ok && ev.Version <= cur.Version {
		return
	}

	if ev.Booking != nil {
		c.adoptLocked(ev.Booking)
		return
	}

	if !ok {
		// An event without a snapshot for an unknown booking cannot be
		// materialized locally; the next resync will pick it up.
		c.log.Debug("event for unknown booking skipped", zap.Int64("booking_id", ev.BookingID))
		return
	}

	// Snapshot-less fallback: patch the fields the event type describes.
	switch ev.Type {
	case domain.EventBookingStateChanged, domain.EventBookingCancelled:
		cur.History = append(cur.History, domain.TransitionEntry{
			From:   cur.State,
			To:     ev.ToState,
			At:     ev.Timestamp,
			Reason: ev.Reason,
		})
		cur.State = ev.ToState
		cur.Version = ev.Version
		c.store.put(cur)
	case domain.EventBookingUpdated:
		if !patchFields(cur, ev.Fields) {
			// Leave the version untouched: advancing it would make the
			// guard treat later authoritative data for this version as a
			// duplicate and the lost fields would never reconcile.
			c.log.Warn("undecodable field diff skipped", zap.Int64("booking_id", ev.BookingID))
			return
		}
		cur.Version = ev.Version
		c.store.put(cur)
	}
}

// patchFields applies a partial field diff from a snapshot-less update
// event. It reports false when the diff cannot be decoded.
func patchFields(b *domain.Booking, fields map[string]any) bool {
	if len(fields) == 0 {
		return true
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return false
	}
	var patch struct {
		Space       *domain.Space          `json:"space"`
		StartTime   *time.Time             `json:"start_time"`
		EndTime     *time.Time             `json:"end_time"`
		ClientName  *string                `json:"client_name"`
		ClientPhone *string                `json:"client_phone"`
		ClientEmail *string                `json:"client_email"`
		Equipment   *[]string              `json:"equipment"`
		People      *int                   `json:"people"`
		Notes       *string                `json:"notes"`
		Price       *domain.PriceBreakdown `json:"price"`
	}
	if json.Unmarshal(data, &patch) != nil {
		return false
	}

	if patch.Space != nil {
		b.Space = *patch.Space
	}
	if patch.StartTime != nil {
		b.StartTime = *patch.StartTime
		b.Date = domain.DayOf(*patch.StartTime)
	}
	if patch.EndTime != nil {
		b.EndTime = *patch.EndTime
	}
	if patch.ClientName != nil {
		b.ClientName = *patch.ClientName
	}
	if patch.ClientPhone != nil {
		b.ClientPhone = *patch.ClientPhone
	}
	if patch.ClientEmail != nil {
		b.ClientEmail = *patch.ClientEmail
	}
	if patch.Equipment != nil {
		b.Equipment = append([]string(nil), (*patch.Equipment)...)
	}
	if patch.People != nil {
		b.People = *patch.People
	}
	if patch.Notes != nil {
		b.Notes = *patch.Notes
	}
	if patch.Price != nil {
		b.Price = *patch.Price
	}
	return true
}

func (c *Coordinator) adoptLocked(b *domain.Booking) {
	c.store.put(b)
}

func applyUpdate(b *domain.Booking, req UpdateRequest) *domain.Booking {
	out := b.Clone()
	if req.Space != nil {
		out.Space = *req.Space
	}
	if req.StartTime != nil {
		out.StartTime = *req.StartTime
		out.Date = domain.DayOf(*req.StartTime)
	}
	if req.EndTime != nil {
		out.EndTime = *req.EndTime
	}
	if req.ClientName != nil {
		out.ClientName = *req.ClientName
	}
	if req.ClientPhone != nil {
		out.ClientPhone = *req.ClientPhone
	}
	if req.ClientEmail != nil {
		out.ClientEmail = *req.ClientEmail
	}
	if req.Equipment != nil {
		out.Equipment = append([]string(nil), (*req.Equipment)...)
	}
	if req.People != nil {
		out.People = *req.People
	}
	if req.Discount != nil {
		out.Price.Discount = *req.Discount
	}
	if req.Notes != nil {
		out.Notes = *req.Notes
	}
	return out
}
