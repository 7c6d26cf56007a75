package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"studioboard/internal/config"
	"studioboard/internal/database"
	"studioboard/internal/domain"
	"studioboard/internal/modules/lifecycle"
	"studioboard/internal/modules/pricing"
	"studioboard/internal/server"
)

// Seeds the database with demo operators and a day of bookings.
func main() {
	_ = godotenv.Load()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}
	if err := server.AutoMigrate(db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	if err := db.Exec("DELETE FROM bookings").Error; err != nil {
		log.Fatal("wipe bookings", zap.Error(err))
	}
	if err := db.Exec("DELETE FROM operators").Error; err != nil {
		log.Fatal("wipe operators", zap.Error(err))
	}

	ctx := context.Background()
	repo := server.NewRepository(db)

	operators := []struct {
		email, password, name, role string
	}{
		{"admin@studioboard.local", "admin123", "Admin", "admin"},
		{"operator@studioboard.local", "operator123", "Front Desk", "operator"},
	}
	for _, op := range operators {
		hash, err := bcrypt.GenerateFromPassword([]byte(op.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("hash password", zap.Error(err))
		}
		if err := repo.CreateOperator(ctx, op.email, string(hash), op.name, op.role); err != nil {
			log.Fatal("create operator", zap.String("email", op.email), zap.Error(err))
		}
		log.Info("operator created", zap.String("email", op.email), zap.String("role", op.role))
	}

	calc := pricing.NewCalculator(pricing.Default())
	today := domain.DayOf(time.Now().UTC())

	samples := []struct {
		space     domain.Space
		startHour int
		hours     int
		state     domain.BookingState
		client    string
		phone     string
		equipment []string
		people    int
	}{
		{domain.SpaceMainStudio, 10, 2, domain.StateConfirmed, "Aigerim Satpayeva", "+77011234567", []string{"lighting_kit"}, 3},
		{domain.SpaceMainStudio, 14, 3, domain.StatePending, "Daniyar Omarov", "+77029876543", nil, 6},
		{domain.SpaceSmallStudio, 11, 1, domain.StateConfirmed, "Elena Kim", "+77054443322", []string{"backdrop"}, 2},
		{domain.SpaceOutdoorArea, 17, 2, domain.StateDraft, "Marat Abenov", "+77771112233", nil, 4},
	}

	for i, s := range samples {
		start := today.Add(time.Duration(s.startHour) * time.Hour)
		end := start.Add(time.Duration(s.hours) * time.Hour)
		price, err := calc.Compute(pricing.Request{
			Space:     s.space,
			Start:     start,
			End:       end,
			Equipment: s.equipment,
			People:    s.people,
		})
		if err != nil {
			log.Fatal("price sample", zap.Error(err))
		}

		now := time.Now().UTC()
		b := &domain.Booking{
			Reference:     fmt.Sprintf("BK-%s-SEED%04d", today.Format("20060102"), i+1),
			Space:         s.space,
			Date:          today,
			StartTime:     start,
			EndTime:       end,
			State:         s.state,
			History:       seedHistory(s.state, now),
			ClientName:    s.client,
			ClientPhone:   s.phone,
			Equipment:     s.equipment,
			People:        s.people,
			Price:         price,
			PaymentStatus: domain.PaymentUnpaid,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := repo.Create(ctx, b); err != nil {
			log.Fatal("create booking", zap.String("reference", b.Reference), zap.Error(err))
		}
		log.Info("booking created",
			zap.String("reference", b.Reference),
			zap.String("space", string(b.Space)),
			zap.String("state", string(b.State)))
	}

	log.Info("seed complete")
}

// seedHistory fabricates a plausible lifecycle trail ending in the wanted
// state.
func seedHistory(state domain.BookingState, at time.Time) []domain.TransitionEntry {
	h := lifecycle.NewHistory(domain.StateDraft, "seed", at.Add(-2*time.Hour))
	path := map[domain.BookingState][]domain.BookingState{
		domain.StateDraft:     {},
		domain.StatePending:   {domain.StatePending},
		domain.StateConfirmed: {domain.StatePending, domain.StateConfirmed},
	}[state]
	cur := domain.StateDraft
	for i, next := range path {
		h = append(h, domain.TransitionEntry{
			From:  cur,
			To:    next,
			At:    at.Add(time.Duration(i-1) * time.Hour),
			Actor: "seed",
		})
		cur = next
	}
	return h
}
