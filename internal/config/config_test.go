package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.LogLevel)
	}
	if cfg.DefaultProvider != "gemini" {
		t.Errorf("expected default provider 'gemini', got %q", cfg.DefaultProvider)
	}
	if cfg.Cache.Mode != "memory" {
		t.Errorf("expected default cache mode 'memory', got %q", cfg.Cache.Mode)
	}
	if cfg.Cache.TTL != 60*time.Second {
		t.Errorf("expected default cache TTL 60s, got %v", cfg.Cache.TTL)
	}
	if cfg.RateLimit.MinCallInterval != time.Second {
		t.Errorf("expected default pacing interval 1s, got %v", cfg.RateLimit.MinCallInterval)
	}
	if cfg.Retry.MaxAttempts != 4 {
		t.Errorf("expected default max attempts 4, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != time.Second {
		t.Errorf("expected default base delay 1s, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.Jitter != 250*time.Millisecond {
		t.Errorf("expected default jitter 250ms, got %v", cfg.Retry.Jitter)
	}
	if cfg.AgentsDBPath != "agents.db" {
		t.Errorf("expected default agents DB path 'agents.db', got %q", cfg.AgentsDBPath)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DEFAULT_PROVIDER", "Anthropic")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("GOOGLE_API_KEY", "mock-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level should be lowercased, got %q", cfg.LogLevel)
	}
	if cfg.DefaultProvider != "anthropic" {
		t.Errorf("default provider should be lowercased, got %q", cfg.DefaultProvider)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("expected cache TTL 5m, got %v", cfg.Cache.TTL)
	}
	if cfg.Gemini.APIKey != "mock-key" {
		t.Errorf("expected gemini key from env, got %q", cfg.Gemini.APIKey)
	}
	if !cfg.AtLeastOneProviderKey() {
		t.Error("expected AtLeastOneProviderKey to be true")
	}
}

func TestLoad_KeylessIsAllowed(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("keyless startup must not fail: %v", err)
	}
	if cfg.AtLeastOneProviderKey() {
		t.Skip("provider key present in environment")
	}
}

func TestValidate_RedisModeRequiresURL(t *testing.T) {
	t.Setenv("CACHE_MODE", "redis")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for CACHE_MODE=redis without REDIS_URL")
	}
	if !strings.Contains(err.Error(), "REDIS_URL") {
		t.Errorf("error should mention REDIS_URL, got: %v", err)
	}
}

func TestValidate_RedisModeWithURL(t *testing.T) {
	t.Setenv("CACHE_MODE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.Mode != "redis" {
		t.Errorf("expected cache mode 'redis', got %q", cfg.Cache.Mode)
	}
}

func TestValidate_InvalidCacheMode(t *testing.T) {
	t.Setenv("CACHE_MODE", "disk")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid CACHE_MODE")
	}
	if !strings.Contains(err.Error(), "CACHE_MODE") {
		t.Errorf("error should mention CACHE_MODE, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid LOG_LEVEL")
	}
}

func TestValidate_RetryAttemptsFloor(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for RETRY_MAX_ATTEMPTS=0")
	}
}

func TestValidate_NegativeRPMLimit(t *testing.T) {
	t.Setenv("RPM_LIMIT", "-5")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for negative RPM_LIMIT")
	}
}
