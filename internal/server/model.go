package server

import (
	"encoding/json"
	"time"

	"studioboard/internal/domain"
)

type bookingModel struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Reference string `gorm:"column:reference;uniqueIndex;size:32;not null"`

	Space     string    `gorm:"column:space;size:32;not null;index:idx_bookings_space_start"`
	Date      time.Time `gorm:"column:booking_date;not null;index"`
	StartTime time.Time `gorm:"column:start_time;not null;index:idx_bookings_space_start"`
	EndTime   time.Time `gorm:"column:end_time;not null"`

	State   string `gorm:"column:state;size:16;not null"`
	History string `gorm:"column:state_history;type:text;not null"`

	ClientName  string `gorm:"column:client_name;size:255;not null"`
	ClientPhone string `gorm:"column:client_phone;size:32;not null"`
	ClientEmail string `gorm:"column:client_email;size:255"`

	Equipment string `gorm:"column:equipment;type:text"`
	People    int    `gorm:"column:people"`

	PriceBase      float64 `gorm:"column:price_base"`
	PriceEquipment float64 `gorm:"column:price_equipment"`
	PriceDiscount  float64 `gorm:"column:price_discount"`
	PriceTotal     float64 `gorm:"column:price_total"`
	PriceAnomalous bool    `gorm:"column:price_anomalous"`

	PaymentStatus string `gorm:"column:payment_status;size:16;not null"`
	Notes         string `gorm:"column:notes;type:text"`

	Version int64 `gorm:"column:version;not null"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (bookingModel) TableName() string {
	return "bookings"
}

type operatorModel struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Email        string `gorm:"column:email;uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"column:password_hash;size:255;not null"`
	Name         string `gorm:"column:name;size:255"`
	Role         string `gorm:"column:role;size:32;not null;default:operator"`

	CreatedAt time.Time `gorm:"column:created_at"`
}

func (operatorModel) TableName() string {
	return "operators"
}

func toModel(b *domain.Booking) (*bookingModel, error) {
	history, err := json.Marshal(b.History)
	if err != nil {
		return nil, err
	}
	equipment, err := json.Marshal(b.Equipment)
	if err != nil {
		return nil, err
	}
	return &bookingModel{
		ID:             b.ID,
		Reference:      b.Reference,
		Space:          string(b.Space),
		Date:           b.Date,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		State:          string(b.State),
		History:        string(history),
		ClientName:     b.ClientName,
		ClientPhone:    b.ClientPhone,
		ClientEmail:    b.ClientEmail,
		Equipment:      string(equipment),
		People:         b.People,
		PriceBase:      b.Price.Base,
		PriceEquipment: b.Price.Equipment,
		PriceDiscount:  b.Price.Discount,
		PriceTotal:     b.Price.Total,
		PriceAnomalous: b.Price.Anomalous,
		PaymentStatus:  string(b.PaymentStatus),
		Notes:          b.Notes,
		Version:        b.Version,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}, nil
}

func toDomain(m *bookingModel) (*domain.Booking, error) {
	var history []domain.TransitionEntry
	if m.History != "" {
		if err := json.Unmarshal([]byte(m.History), &history); err != nil {
			return nil, err
		}
	}
	var equipment []string
	if m.Equipment != "" {
		if err := json.Unmarshal([]byte(m.Equipment), &equipment); err != nil {
			return nil, err
		}
	}
	return &domain.Booking{
		ID:          m.ID,
		Reference:   m.Reference,
		Space:       domain.Space(m.Space),
		Date:        m.Date,
		StartTime:   m.StartTime,
		EndTime:     m.EndTime,
		State:       domain.BookingState(m.State),
		History:     history,
		ClientName:  m.ClientName,
		ClientPhone: m.ClientPhone,
		ClientEmail: m.ClientEmail,
		Equipment:   equipment,
		People:      m.People,
		Price: domain.PriceBreakdown{
			Base:      m.PriceBase,
			Equipment: m.PriceEquipment,
			Discount:  m.PriceDiscount,
			Total:     m.PriceTotal,
			Anomalous: m.PriceAnomalous,
		},
		PaymentStatus: domain.PaymentStatus(m.PaymentStatus),
		Notes:         m.Notes,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}
