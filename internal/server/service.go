package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"studioboard/internal/domain"
	"studioboard/internal/modules/availability"
	"studioboard/internal/modules/lifecycle"
	"studioboard/internal/modules/pricing"
	"studioboard/internal/pkg/clock"
	"studioboard/internal/pkg/validator"
)

// fieldErrors carries the per-field validation failures of a booking
// payload, so handlers can put them in the response details.
type fieldErrors struct {
	fields map[string]string
}

func (e *fieldErrors) Error() string {
	parts := make([]string, 0, len(e.fields))
	for field, tag := range e.fields {
		parts = append(parts, field+"="+tag)
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *fieldErrors) Unwrap() error { return domain.ErrValidation }

// Service owns the authoritative booking workflow: it validates, checks
// availability, prices, persists, and broadcasts the resulting event.
type Service struct {
	repo *Repository
	calc *pricing.Calculator
	hub  *Hub
	clk  clock.Clock
	log  *zap.Logger

	openHour  int
	closeHour int
}

func NewService(repo *Repository, calc *pricing.Calculator, hub *Hub, openHour, closeHour int, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		calc:      calc,
		hub:       hub,
		clk:       clock.System,
		log:       log,
		openHour:  openHour,
		closeHour: closeHour,
	}
}

func (s *Service) CreateBooking(ctx context.Context, req createBookingRequest, actor string) (*domain.Booking, error) {
	space := domain.Space(req.Space)
	if !space.Valid() {
		return nil, fmt.Errorf("%w: unknown space %q", domain.ErrValidation, req.Space)
	}

	start := req.StartTime.UTC()
	end := req.EndTime.UTC()
	date := domain.DayOf(start)

	if err := domain.ValidateInterval(date, start, end); err != nil {
		return nil, err
	}
	if err := s.withinHours(date, start, end); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListActive(ctx, space, date)
	if err != nil {
		return nil, err
	}
	res, err := availability.Check(space, start, end, existing)
	if err != nil {
		return nil, err
	}
	if !res.Available {
		return nil, fmt.Errorf("%w: slot overlaps %d existing booking(s)", domain.ErrConflict, len(res.Conflicts))
	}

	price, err := s.calc.Compute(pricing.Request{
		Space:     space,
		Start:     start,
		End:       end,
		Equipment: req.Equipment,
		People:    req.People,
		Discount:  req.Discount,
	})
	if err != nil {
		return nil, err
	}

	state := domain.StatePending
	if req.Draft {
		state = domain.StateDraft
	}

	now := s.clk.Now().UTC()
	b := &domain.Booking{
		Reference:     newReference(now),
		Space:         space,
		Date:          date,
		StartTime:     start,
		EndTime:       end,
		State:         state,
		History:       lifecycle.NewHistory(state, actor, now),
		ClientName:    req.ClientName,
		ClientPhone:   req.ClientPhone,
		ClientEmail:   req.ClientEmail,
		Equipment:     req.Equipment,
		People:        req.People,
		Price:         price,
		PaymentStatus: domain.PaymentUnpaid,
		Notes:         req.Notes,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if errs := validator.Validate(b); len(errs) > 0 {
		return nil, &fieldErrors{fields: errs}
	}

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}

	s.hub.Broadcast(domain.Event{
		Type:      domain.EventBookingCreated,
		BookingID: b.ID,
		Timestamp: now,
		Version:   b.Version,
		Booking:   b,
	})
	s.log.Info("booking created",
		zap.Int64("id", b.ID),
		zap.String("reference", b.Reference),
		zap.String("space", string(b.Space)))
	return b, nil
}

func (s *Service) TransitionBooking(ctx context.Context, id, expectedVersion int64, target domain.BookingState, actor, reason string) (*domain.Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && b.Version != expectedVersion {
		return nil, fmt.Errorf("%w: booking %d is at version %d, expected %d",
			domain.ErrStaleVersion, id, b.Version, expectedVersion)
	}

	now := s.clk.Now().UTC()
	updated, err := lifecycle.Transition(b, target, actor, reason, now)
	if err != nil {
		return nil, err
	}
	updated.Version = b.Version + 1
	updated.UpdatedAt = now

	if err := s.repo.UpdateVersioned(ctx, updated, b.Version); err != nil {
		return nil, err
	}

	evType := domain.EventBookingStateChanged
	if target == domain.StateCancelled {
		evType = domain.EventBookingCancelled
	}
	s.hub.Broadcast(domain.Event{
		Type:      evType,
		BookingID: updated.ID,
		Timestamp: now,
		Version:   updated.Version,
		Booking:   updated,
		FromState: b.State,
		ToState:   target,
		Reason:    reason,
	})
	s.log.Info("booking transitioned",
		zap.Int64("id", updated.ID),
		zap.String("from", string(b.State)),
		zap.String("to", string(target)))
	return updated, nil
}

func (s *Service) UpdateBooking(ctx context.Context, id int64, req updateBookingRequest, actor string) (*domain.Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ExpectedVersion != 0 && b.Version != req.ExpectedVersion {
		return nil, fmt.Errorf("%w: booking %d is at version %d, expected %d",
			domain.ErrStaleVersion, id, b.Version, req.ExpectedVersion)
	}
	if b.State.Terminal() {
		return nil, fmt.Errorf("%w: booking %d is %s and can no longer be modified",
			domain.ErrValidation, id, b.State)
	}

	updated := b.Clone()
	fields := make(map[string]any)
	repriced := false

	if req.Space != nil {
		space := domain.Space(*req.Space)
		if !space.Valid() {
			return nil, fmt.Errorf("%w: unknown space %q", domain.ErrValidation, *req.Space)
		}
		updated.Space = space
		fields["space"] = space
		repriced = true
	}
	if req.StartTime != nil {
		updated.StartTime = req.StartTime.UTC()
		fields["start_time"] = updated.StartTime
		repriced = true
	}
	if req.EndTime != nil {
		updated.EndTime = req.EndTime.UTC()
		fields["end_time"] = updated.EndTime
		repriced = true
	}
	if req.ClientName != nil {
		updated.ClientName = *req.ClientName
		fields["client_name"] = *req.ClientName
	}
	if req.ClientPhone != nil {
		updated.ClientPhone = *req.ClientPhone
		fields["client_phone"] = *req.ClientPhone
	}
	if req.ClientEmail != nil {
		updated.ClientEmail = *req.ClientEmail
		fields["client_email"] = *req.ClientEmail
	}
	if req.Equipment != nil {
		updated.Equipment = *req.Equipment
		fields["equipment"] = *req.Equipment
		repriced = true
	}
	if req.People != nil {
		updated.People = *req.People
		fields["people"] = *req.People
		repriced = true
	}
	if req.Notes != nil {
		updated.Notes = *req.Notes
		fields["notes"] = *req.Notes
	}
	discount := b.Price.Discount
	if req.Discount != nil {
		discount = *req.Discount
		repriced = true
	}

	if len(fields) == 0 && req.Discount == nil {
		return b, nil
	}

	intervalMoved := req.Space != nil || req.StartTime != nil || req.EndTime != nil
	if intervalMoved {
		updated.Date = domain.DayOf(updated.StartTime)
		if err := updated.ValidateInterval(); err != nil {
			return nil, err
		}
		if err := s.withinHours(updated.Date, updated.StartTime, updated.EndTime); err != nil {
			return nil, err
		}
		existing, err := s.repo.ListActive(ctx, updated.Space, updated.Date)
		if err != nil {
			return nil, err
		}
		others := existing[:0]
		for _, other := range existing {
			if other.ID != b.ID {
				others = append(others, other)
			}
		}
		res, err := availability.Check(updated.Space, updated.StartTime, updated.EndTime, others)
		if err != nil {
			return nil, err
		}
		if !res.Available {
			return nil, fmt.Errorf("%w: slot overlaps %d existing booking(s)", domain.ErrConflict, len(res.Conflicts))
		}
	}

	if repriced {
		price, err := s.calc.Compute(pricing.Request{
			Space:     updated.Space,
			Start:     updated.StartTime,
			End:       updated.EndTime,
			Equipment: updated.Equipment,
			People:    updated.People,
			Discount:  discount,
		})
		if err != nil {
			return nil, err
		}
		updated.Price = price
		fields["price"] = price
	}

	if errs := validator.Validate(updated); len(errs) > 0 {
		return nil, &fieldErrors{fields: errs}
	}

	now := s.clk.Now().UTC()
	updated.Version = b.Version + 1
	updated.UpdatedAt = now

	if err := s.repo.UpdateVersioned(ctx, updated, b.Version); err != nil {
		return nil, err
	}

	s.hub.Broadcast(domain.Event{
		Type:      domain.EventBookingUpdated,
		BookingID: updated.ID,
		Timestamp: now,
		Version:   updated.Version,
		Booking:   updated,
		Fields:    fields,
	})
	s.log.Info("booking updated", zap.Int64("id", updated.ID), zap.Int("fields", len(fields)))
	return updated, nil
}

func (s *Service) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListBookings(ctx context.Context, date time.Time, space domain.Space) ([]domain.Booking, error) {
	if space != "" && !space.Valid() {
		return nil, fmt.Errorf("%w: unknown space %q", domain.ErrValidation, space)
	}
	return s.repo.ListByDate(ctx, date, space)
}

// FreeSlots returns the unoccupied sub-intervals of the working day for a
// space.
func (s *Service) FreeSlots(ctx context.Context, space domain.Space, date time.Time) ([]availability.Slot, error) {
	if !space.Valid() {
		return nil, fmt.Errorf("%w: unknown space %q", domain.ErrValidation, space)
	}
	day := domain.DayOf(date)
	existing, err := s.repo.ListActive(ctx, space, day)
	if err != nil {
		return nil, err
	}
	open := day.Add(time.Duration(s.openHour) * time.Hour)
	close := day.Add(time.Duration(s.closeHour) * time.Hour)
	return availability.FreeSlots(space, open, close, existing), nil
}

// Authenticate checks operator credentials and returns identity for token
// issuance.
func (s *Service) Authenticate(ctx context.Context, email, password string) (int64, string, error) {
	op, err := s.repo.GetOperatorByEmail(ctx, email)
	if err != nil {
		return 0, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)) != nil {
		return 0, "", fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	return op.ID, op.Role, nil
}

func (s *Service) withinHours(date, start, end time.Time) error {
	open := date.Add(time.Duration(s.openHour) * time.Hour)
	close := date.Add(time.Duration(s.closeHour) * time.Hour)
	if start.Before(open) || end.After(close) {
		return fmt.Errorf("%w: slot is outside working hours %02d:00-%02d:00",
			domain.ErrValidation, s.openHour, s.closeHour)
	}
	return nil
}

func newReference(now time.Time) string {
	frag := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("BK-%s-%s", now.Format("20060102"), frag)
}
