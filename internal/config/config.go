package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the client binary reads from the environment.
type Config struct {
	ServerURL string
	UserID    string
	Token     string

	// HTTPAddr serves the local read-only diagnostics endpoints.
	HTTPAddr string

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	BackoffBase       time.Duration
	MaxAttempts       int

	TurnDuration      time.Duration
	ReadyDuration     time.Duration
	FallbackDelay     time.Duration
	AnimationDuration time.Duration
	ResultPause       time.Duration
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional .env for local development

	cfg := &Config{
		ServerURL:         getEnv("DICEARENA_SERVER_URL", "ws://localhost:8080/ws"),
		UserID:            os.Getenv("DICEARENA_USER_ID"),
		Token:             os.Getenv("DICEARENA_TOKEN"),
		HTTPAddr:          getEnv("DICEARENA_HTTP_ADDR", "127.0.0.1:8090"),
		HeartbeatInterval: getDuration("DICEARENA_HEARTBEAT_INTERVAL", 15*time.Second),
		HeartbeatTimeout:  getDuration("DICEARENA_HEARTBEAT_TIMEOUT", 5*time.Second),
		BackoffBase:       getDuration("DICEARENA_BACKOFF_BASE", time.Second),
		MaxAttempts:       6,
		TurnDuration:      getDuration("DICEARENA_TURN_DURATION", 15*time.Second),
		ReadyDuration:     getDuration("DICEARENA_READY_DURATION", 30*time.Second),
		FallbackDelay:     getDuration("DICEARENA_FALLBACK_DELAY", 2*time.Second),
		AnimationDuration: getDuration("DICEARENA_ANIMATION_DURATION", 900*time.Millisecond),
		ResultPause:       getDuration("DICEARENA_RESULT_PAUSE", time.Second),
	}

	if cfg.UserID == "" {
		return nil, fmt.Errorf("DICEARENA_USER_ID is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
