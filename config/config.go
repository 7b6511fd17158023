// Package config loads process-wide configuration from the environment and
// an optional .env file, and defines the fatal ConfigurationError raised when
// a required production secret is missing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process-level configuration values (spec.md §6.4).
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Database
	DatabaseURL string

	// Redis — optional; a failed connection degrades, it never aborts startup.
	RedisURL string

	// Upstream issue-tracker app credentials.
	UpstreamAppID         string
	UpstreamPrivateKey    string
	UpstreamWebhookSecret string
	UpstreamAPIURL        string

	// Session / token encryption.
	SessionSecret  string
	TokenEncryptKey string

	// Billing provider.
	BillingSecret        string
	BillingWebhookSecret string

	PublicURL string

	// Rate limiting (spec.md §5).
	APIRateLimitRPM     int
	AuthRateLimitRPM    int
	WebhookRateLimitRPM int

	// Body limits.
	MaxBodyBytes int64

	// Upstream HTTP call deadline (spec.md §5).
	UpstreamCallTimeout time.Duration

	// Debounce / cooldown (spec.md §4.10).
	DebounceWindow  time.Duration
	CooldownWindow  time.Duration

	// Past-due sweep (spec.md §4.4): how often open items with a targetDate
	// before today get nudged forward and recalculated.
	PastDueSweepInterval time.Duration

	LogLevel string
}

// Load reads configuration from environment variables and an optional .env
// file, applying the teacher's env-with-fallback pattern throughout.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("GRACEFUL_TIMEOUT_SEC", 15)

	return &Config{
		Addr:            getEnv("ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,
		DatabaseURL:     getEnv("DATABASE_URL", "file:scheduler.db"),
		RedisURL:        getEnv("REDIS_URL", "redis://redis:6379"),

		UpstreamAppID:         getEnv("UPSTREAM_APP_ID", ""),
		UpstreamPrivateKey:    getEnv("UPSTREAM_PRIVATE_KEY", ""),
		UpstreamWebhookSecret: getEnv("UPSTREAM_WEBHOOK_SECRET", ""),
		UpstreamAPIURL:        getEnv("UPSTREAM_API_URL", "https://api.github.com/graphql"),

		SessionSecret:   getEnv("SESSION_SECRET", ""),
		TokenEncryptKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),

		BillingSecret:        getEnv("BILLING_SECRET", ""),
		BillingWebhookSecret: getEnv("BILLING_WEBHOOK_SECRET", ""),

		PublicURL: getEnv("PUBLIC_URL", "http://localhost:8080"),

		APIRateLimitRPM:     getEnvInt("API_RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM:    getEnvInt("AUTH_RATE_LIMIT_RPM", 20),
		WebhookRateLimitRPM: getEnvInt("WEBHOOK_RATE_LIMIT_RPM", 60),

		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 1*1024*1024)),

		UpstreamCallTimeout: time.Duration(getEnvInt("UPSTREAM_CALL_TIMEOUT_SEC", 10)) * time.Second,

		DebounceWindow: time.Duration(getEnvInt("DEBOUNCE_WINDOW_MS", 1000)) * time.Millisecond,
		CooldownWindow: time.Duration(getEnvInt("COOLDOWN_WINDOW_MS", 5000)) * time.Millisecond,

		PastDueSweepInterval: time.Duration(getEnvInt("PAST_DUE_SWEEP_INTERVAL_SEC", 3600)) * time.Second,

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ConfigurationError is fatal at startup: a required production secret is
// missing (spec.md §7).
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Field)
}

// Validate enforces the required-in-production secrets of spec.md §6.4.
// Development mode allows deterministic fallbacks instead (spec.md §9).
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	required := map[string]string{
		"UPSTREAM_APP_ID":         c.UpstreamAppID,
		"UPSTREAM_PRIVATE_KEY":    c.UpstreamPrivateKey,
		"UPSTREAM_WEBHOOK_SECRET": c.UpstreamWebhookSecret,
		"SESSION_SECRET":          c.SessionSecret,
		"TOKEN_ENCRYPTION_KEY":    c.TokenEncryptKey,
		"BILLING_SECRET":          c.BillingSecret,
		"BILLING_WEBHOOK_SECRET":  c.BillingWebhookSecret,
	}
	for field, v := range required {
		if v == "" {
			return &ConfigurationError{Field: field}
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
