package main

import (
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"studioboard/internal/config"
	"studioboard/internal/database"
	"studioboard/internal/modules/pricing"
	jwtsvc "studioboard/internal/pkg/jwt"
	"studioboard/internal/server"
)

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

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}
	if err := server.AutoMigrate(db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	policy, err := pricing.Load(cfg.PricingPolicyPath)
	if err != nil {
		log.Warn("pricing policy not loaded, using defaults",
			zap.String("path", cfg.PricingPolicyPath), zap.Error(err))
		policy = pricing.Default()
	}

	jwt := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)
	hub := server.NewHub(log)
	repo := server.NewRepository(db)
	svc := server.NewService(repo, pricing.NewCalculator(policy), hub, cfg.OpenHour, cfg.CloseHour, log)
	handler := server.NewHandler(svc, hub, jwt, log)

	r := server.NewRouter(handler, jwt, log)

	log.Info("server listening", zap.String("addr", cfg.ServerAddr))
	if err := r.Run(cfg.ServerAddr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
