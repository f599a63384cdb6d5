package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all service configuration, loaded from the environment.
type Config struct {
	ListenAddr      string        `env:"GATEPASS_LISTEN_ADDR" envDefault:":8080"`
	PostgresDSN     string        `env:"GATEPASS_PG_DSN"`
	RedisAddr       string        `env:"GATEPASS_REDIS_ADDR"`
	AuthSecret      string        `env:"GATEPASS_AUTH_SECRET"`
	TokenTTL        time.Duration `env:"GATEPASS_TOKEN_TTL" envDefault:"12h"`
	MaxBodyBytes    int64         `env:"GATEPASS_MAX_BODY_BYTES" envDefault:"1048576"` // 1MB
	RateBurst       int           `env:"GATEPASS_RATE_BURST" envDefault:"50"`
	RatePerSec      int           `env:"GATEPASS_RATE_PER_SEC" envDefault:"25"`
	PingInterval    time.Duration `env:"GATEPASS_PING_INTERVAL" envDefault:"25s"`
	SyncStream      string        `env:"GATEPASS_SYNC_STREAM" envDefault:"checkin_sync"`
	SyncGroup       string        `env:"GATEPASS_SYNC_GROUP" envDefault:"reconcilers"`
	ShutdownTimeout time.Duration `env:"GATEPASS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables. A local .env file is
// honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
