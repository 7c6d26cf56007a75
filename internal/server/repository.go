package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"studioboard/internal/domain"
)

// Repository is the persistence layer for bookings and operators.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AutoMigrate creates or updates the schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&bookingModel{}, &operatorModel{})
}

func (r *Repository) Create(ctx context.Context, b *domain.Booking) error {
	m, err := toModel(b)
	if err != nil {
		return fmt.Errorf("marshal booking: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: booking reference already exists", domain.ErrConflict)
		}
		return err
	}
	b.ID = m.ID
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var m bookingModel
	err := r.db.WithContext(ctx).First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: booking %d", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return toDomain(&m)
}

// ListByDate returns all bookings on the given day, optionally filtered by
// space, ordered by start time.
func (r *Repository) ListByDate(ctx context.Context, date time.Time, space domain.Space) ([]domain.Booking, error) {
	q := r.db.WithContext(ctx).Where("booking_date = ?", domain.DayOf(date))
	if space != "" {
		q = q.Where("space = ?", string(space))
	}
	var models []bookingModel
	if err := q.Order("start_time asc, id asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Booking, 0, len(models))
	for i := range models {
		b, err := toDomain(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

// ListActive returns the non-terminal bookings occupying a space on a day.
// Only these participate in conflict checks.
func (r *Repository) ListActive(ctx context.Context, space domain.Space, date time.Time) ([]domain.Booking, error) {
	var models []bookingModel
	err := r.db.WithContext(ctx).
		Where("space = ? AND booking_date = ?", string(space), domain.DayOf(date)).
		Where("state NOT IN ?", []string{
			string(domain.StateCompleted),
			string(domain.StateCancelled),
			string(domain.StateNoShow),
		}).
		Order("start_time asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Booking, 0, len(models))
	for i := range models {
		b, err := toDomain(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

// UpdateVersioned persists the booking only if the stored row still carries
// expectedVersion. A version mismatch on an existing row is reported as
// ErrStaleVersion.
func (r *Repository) UpdateVersioned(ctx context.Context, b *domain.Booking, expectedVersion int64) error {
	m, err := toModel(b)
	if err != nil {
		return fmt.Errorf("marshal booking: %w", err)
	}
	res := r.db.WithContext(ctx).
		Model(&bookingModel{}).
		Where("id = ? AND version = ?", b.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&bookingModel{}).Where("id = ?", b.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: booking %d", domain.ErrNotFound, b.ID)
		}
		return fmt.Errorf("%w: booking %d changed since version %d", domain.ErrStaleVersion, b.ID, expectedVersion)
	}
	return nil
}

func (r *Repository) GetOperatorByEmail(ctx context.Context, email string) (*operatorModel, error) {
	var m operatorModel
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repository) CreateOperator(ctx context.Context, email, passwordHash, name, role string) error {
	m := &operatorModel{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
	}
	return r.db.WithContext(ctx).Create(m).Error
}
