package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"studioboard/internal/api"
	"studioboard/internal/config"
	"studioboard/internal/domain"
	"studioboard/internal/modules/board"
	"studioboard/internal/modules/realtime"
)

// The board process keeps a live local replica of today's bookings: it logs
// in, pulls the initial snapshot, then follows server pushes, resyncing on
// every reconnect.
func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if cfg.OperatorEmail == "" || cfg.OperatorPassword == "" {
		log.Fatal("OPERATOR_EMAIL and OPERATOR_PASSWORD must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	token, err := api.Login(ctx, cfg.APIBaseURL, cfg.OperatorEmail, cfg.OperatorPassword)
	cancel()
	if err != nil {
		log.Fatal("login", zap.Error(err))
	}

	client := api.NewClient(cfg.APIBaseURL, api.StaticToken(token), cfg.CommandTimeout, log)
	store := board.NewStore()
	coord := board.NewCoordinator(store, client, board.Config{
		CommandTimeout: cfg.CommandTimeout,
		Logger:         log,
		OnError: func(bookingID int64, err error) {
			log.Warn("mutation rejected, local change rolled back",
				zap.Int64("booking_id", bookingID), zap.Error(err))
		},
	})

	manager := realtime.New(realtime.Config{
		URL:                  cfg.EventsURL,
		Token:                func() (string, error) { return token, nil },
		HeartbeatInterval:    cfg.HeartbeatInterval,
		HeartbeatTimeout:     cfg.HeartbeatTimeout,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		BackoffBase:          cfg.ReconnectBackoff,
		BackoffMax:           cfg.ReconnectBackoffMax,
		Logger:               log,
	})

	for _, t := range []domain.EventType{
		domain.EventBookingCreated,
		domain.EventBookingUpdated,
		domain.EventBookingStateChanged,
		domain.EventBookingCancelled,
	} {
		manager.Subscribe(t, coord.ApplyEvent)
	}

	manager.OnConnect(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CommandTimeout)
		defer cancel()
		if err := coord.Resync(ctx, time.Now().UTC(), ""); err != nil {
			log.Error("resync", zap.Error(err))
			return
		}
		log.Info("board synced", zap.Int("bookings", store.Len()))
	})

	if err := manager.Connect(); err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	log.Info("board running", zap.String("events_url", cfg.EventsURL))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	manager.Disconnect()
	log.Info("board stopped")
}
