package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultServerAddr        = ":8080"
	defaultDatabaseURL       = "studioboard.db"
	defaultJWTSecret         = "change-me-jwt-secret"
	defaultJWTTTL            = "24h"
	defaultAPIBaseURL        = "http://localhost:8080"
	defaultEventsURL         = "ws://localhost:8080/ws/events"
	defaultCommandTimeout    = "10s"
	defaultHeartbeatInterval = "30s"
	defaultHeartbeatTimeout  = "10s"
	defaultBackoffBase       = "1s"
	defaultBackoffMax        = "30s"
	defaultMaxReconnects     = "5"
	defaultOpenHour          = "9"
	defaultCloseHour         = "21"
)

type Config struct {
	// Server side.
	ServerAddr  string
	DatabaseURL string
	JWTSecret   string
	JWTTTL      time.Duration
	OpenHour    int
	CloseHour   int

	// Board client side.
	APIBaseURL       string
	EventsURL        string
	OperatorEmail    string
	OperatorPassword string

	CommandTimeout       time.Duration
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	ReconnectBackoff     time.Duration
	ReconnectBackoffMax  time.Duration
	MaxReconnectAttempts int

	PricingPolicyPath string
}

func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr:        getEnv("SERVER_ADDR", defaultServerAddr),
		DatabaseURL:       getEnv("DATABASE_URL", defaultDatabaseURL),
		JWTSecret:         strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret)),
		APIBaseURL:        getEnv("API_BASE_URL", defaultAPIBaseURL),
		EventsURL:         getEnv("EVENTS_URL", defaultEventsURL),
		OperatorEmail:     getEnv("OPERATOR_EMAIL", ""),
		OperatorPassword:  getEnv("OPERATOR_PASSWORD", ""),
		PricingPolicyPath: getEnv("PRICING_POLICY_PATH", "configs/pricing.toml"),
	}

	var err error
	if cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", defaultJWTTTL); err != nil {
		return nil, err
	}
	if cfg.CommandTimeout, err = parseDurationEnv("COMMAND_TIMEOUT", defaultCommandTimeout); err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval, err = parseDurationEnv("HEARTBEAT_INTERVAL", defaultHeartbeatInterval); err != nil {
		return nil, err
	}
	if cfg.HeartbeatTimeout, err = parseDurationEnv("HEARTBEAT_TIMEOUT", defaultHeartbeatTimeout); err != nil {
		return nil, err
	}
	if cfg.ReconnectBackoff, err = parseDurationEnv("RECONNECT_BACKOFF", defaultBackoffBase); err != nil {
		return nil, err
	}
	if cfg.ReconnectBackoffMax, err = parseDurationEnv("RECONNECT_BACKOFF_MAX", defaultBackoffMax); err != nil {
		return nil, err
	}
	if cfg.MaxReconnectAttempts, err = parseIntEnv("MAX_RECONNECT_ATTEMPTS", defaultMaxReconnects); err != nil {
		return nil, err
	}
	if cfg.OpenHour, err = parseIntEnv("STUDIO_OPEN_HOUR", defaultOpenHour); err != nil {
		return nil, err
	}
	if cfg.CloseHour, err = parseIntEnv("STUDIO_CLOSE_HOUR", defaultCloseHour); err != nil {
		return nil, err
	}
	if cfg.OpenHour < 0 || cfg.CloseHour > 24 || cfg.OpenHour >= cfg.CloseHour {
		return nil, fmt.Errorf("invalid working hours %d-%d", cfg.OpenHour, cfg.CloseHour)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDurationEnv(key, fallback string) (time.Duration, error) {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	return d, nil
}

func parseIntEnv(key, fallback string) (int, error) {
	raw := getEnv(key, fallback)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, raw, err)
	}
	return n, nil
}
