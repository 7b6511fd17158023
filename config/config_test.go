package config

import (
	"os"
	"testing"
)

func TestLoadConfigFromEnv(t *testing.T) {
	os.Setenv("DATABASE_URL", "file:test.db")
	os.Setenv("ADDR", ":9090")
	os.Setenv("ENV", "test")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("ADDR")
		os.Unsetenv("ENV")
	}()

	cfg := Load()
	if cfg.DatabaseURL != "file:test.db" {
		t.Fatalf("expected DATABASE_URL to be loaded, got %s", cfg.DatabaseURL)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("expected ADDR to be loaded, got %s", cfg.Addr)
	}
	if cfg.Env != "test" {
		t.Fatalf("expected ENV=test, got %s", cfg.Env)
	}
}

func TestValidateSkipsOutsideProduction(t *testing.T) {
	cfg := &Config{Env: "development"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("development config should never fail validation, got %v", err)
	}
}

func TestValidateFailsInProductionWithoutSecrets(t *testing.T) {
	cfg := &Config{Env: "production"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected ConfigurationError for missing secrets in production")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Fatalf("expected *ConfigurationError, got %T", err)
	}
}

func TestValidatePassesInProductionWithSecrets(t *testing.T) {
	cfg := &Config{
		Env:                   "production",
		UpstreamAppID:         "app",
		UpstreamPrivateKey:    "key",
		UpstreamWebhookSecret: "whsec",
		SessionSecret:         "session",
		TokenEncryptKey:       "token-key",
		BillingSecret:         "billing",
		BillingWebhookSecret:  "billing-whsec",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error with all secrets set, got %v", err)
	}
}
