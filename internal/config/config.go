package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultAppName            = "GradeStakes"
	defaultAppEnv             = "development"
	defaultPort               = "8080"
	defaultMetricsPort        = "9095"
	defaultLogLevel           = "info"
	defaultShutdownDelay      = 10 * time.Second
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultAccessTokenTTL     = 15 * time.Minute
	defaultSettlementInterval = 5 * time.Minute
	defaultSettlementGrace    = 30 * 24 * time.Hour
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL string
	RedisURL    string

	JWTSecret      string
	AccessTokenTTL time.Duration

	// LMSBaseURL points at the external grade source. Empty selects the
	// static gateway (dev mode only).
	LMSBaseURL string

	MetricsPort        string
	ShutdownPeriod     time.Duration
	IdempotencyTTL     time.Duration
	SettlementInterval time.Duration
	SettlementGrace    time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:  getEnv("APP_NAME", defaultAppName),
		AppEnv:   getEnv("APP_ENV", defaultAppEnv),
		Port:     getEnv("PORT", defaultPort),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		LMSBaseURL: os.Getenv("LMS_BASE_URL"),

		MetricsPort:        getEnv("METRICS_PORT", defaultMetricsPort),
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		AccessTokenTTL:     defaultAccessTokenTTL,
		SettlementInterval: defaultSettlementInterval,
		SettlementGrace:    defaultSettlementGrace,
	}

	durations := []struct {
		envVar string
		target *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL},
		{"ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL},
		{"SETTLEMENT_INTERVAL", &cfg.SettlementInterval},
		{"SETTLEMENT_GRACE", &cfg.SettlementGrace},
	}
	for _, d := range durations {
		if v := os.Getenv(d.envVar); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.envVar, err)
			}
			*d.target = parsed
		}
	}

	if cfg.JWTSecret == "" {
		if !cfg.IsDev() {
			return Config{}, fmt.Errorf("JWT_SECRET must be set")
		}
		cfg.JWTSecret = "dev-only-secret"
	}
	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
