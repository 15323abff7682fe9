package app

import (
	"time"

	"github.com/feastline/feastline-backend/internal/platform/envutil"
)

type Config struct {
	Environment    string
	ServerAddr     string
	PacingInterval time.Duration
	RedisEnabled   bool
}

func LoadConfig() Config {
	return Config{
		Environment:    envutil.Str("APP_ENV", "development"),
		ServerAddr:     envutil.Str("SERVER_ADDR", ":8080"),
		PacingInterval: envutil.Duration("WORKFLOW_PACING_INTERVAL", 500*time.Millisecond),
		RedisEnabled:   envutil.Str("REDIS_ADDR", "") != "",
	}
}
