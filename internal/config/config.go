// Package config loads and validates all runtime configuration for the
// backend.
//
// Configuration is read from environment variables (preferred for containers)
// or from a config.yaml file in the working directory. Environment variables
// take precedence over the YAML file; a .env file is loaded first when
// present.
//
// No provider key is strictly required to start — the gateway degrades
// gracefully and answers every request with an apology when nothing is
// configured, which keeps local frontend development keyless.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8000.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	// Default: info.
	LogLevel string

	// Provider API keys. Any provider without a key stays registered and
	// reports a configuration error when selected.
	Gemini     ProviderConfig
	OpenAI     ProviderConfig
	Anthropic  ProviderConfig
	Perplexity ProviderConfig

	// DefaultProvider answers requests that carry no providerId or an
	// unknown one. Default: "gemini".
	DefaultProvider string

	// Redis holds the connection URL for the Redis-backed cache and rate
	// limiter. Required only when Cache.Mode is "redis".
	Redis RedisConfig

	// Cache controls response caching.
	Cache CacheConfig

	// RateLimit controls both throttle layers.
	RateLimit RateLimitConfig

	// Retry controls the backoff loop around rate-limited provider calls.
	Retry RetryConfig

	// ProviderTimeout is the per-request upstream timeout. Default: 60s.
	ProviderTimeout time.Duration

	// AgentsDBPath is the SQLite file for agent persistence.
	// Default: "agents.db". Use ":memory:" for ephemeral storage.
	AgentsDBPath string

	// ClickHouseURL enables the async request-log sink when non-empty.
	ClickHouseURL string

	// CORSOrigins is the list of allowed CORS origins. Empty uses the local
	// React dev server defaults; ["*"] allows any origin.
	CORSOrigins []string
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	// APIKey is the provider API key. Leave empty to run the provider in
	// degraded mode.
	APIKey string

	// BaseURL overrides the provider's default API endpoint.
	// Useful for local mocks. Leave empty to use the default.
	BaseURL string

	// Model overrides the provider's default model name.
	Model string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// Mode selects the cache backend:
	//   "redis"  — Redis-backed cache (requires REDIS_URL). Shared across replicas.
	//   "memory" — In-process TTL cache. No external deps.
	//   "none"   — Cache disabled entirely.
	// Default: "memory".
	Mode string

	// TTL is the time-to-live for cached responses. Default: 60s.
	TTL time.Duration
}

// RateLimitConfig controls request-rate limiting.
type RateLimitConfig struct {
	// MinCallInterval is the minimum spacing between successive calls to
	// the same provider. 0 disables pacing. Default: 1s.
	MinCallInterval time.Duration

	// RPMLimit is the maximum inbound requests per minute allowed globally.
	// 0 disables the guard. Default: 0.
	RPMLimit int
}

// RetryConfig controls retry behaviour for rate-limited provider calls.
type RetryConfig struct {
	// MaxAttempts is the total number of provider calls per request,
	// including the first. Default: 4.
	MaxAttempts int

	// BaseDelay is the first backoff sleep; it doubles per retry. Default: 1s.
	BaseDelay time.Duration

	// Jitter is the random addition to each sleep. Default: 250ms.
	Jitter time.Duration
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEFAULT_PROVIDER", "gemini")
	v.SetDefault("CACHE_MODE", "memory")
	v.SetDefault("CACHE_TTL", "60s")
	v.SetDefault("MIN_CALL_INTERVAL", "1s")
	v.SetDefault("RPM_LIMIT", 0)
	v.SetDefault("RETRY_MAX_ATTEMPTS", 4)
	v.SetDefault("RETRY_BASE_DELAY", "1s")
	v.SetDefault("RETRY_JITTER", "250ms")
	v.SetDefault("PROVIDER_TIMEOUT", "60s")
	v.SetDefault("AGENTS_DB_PATH", "agents.db")

	// ── Build config ──────────────────────────────────────────────────────────
	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		Gemini:     ProviderConfig{APIKey: v.GetString("GOOGLE_API_KEY"), BaseURL: v.GetString("GEMINI_BASE_URL"), Model: v.GetString("GEMINI_MODEL")},
		OpenAI:     ProviderConfig{APIKey: v.GetString("OPENAI_API_KEY"), BaseURL: v.GetString("OPENAI_BASE_URL"), Model: v.GetString("OPENAI_MODEL")},
		Anthropic:  ProviderConfig{APIKey: v.GetString("ANTHROPIC_API_KEY"), BaseURL: v.GetString("ANTHROPIC_BASE_URL"), Model: v.GetString("ANTHROPIC_MODEL")},
		Perplexity: ProviderConfig{APIKey: v.GetString("PERPLEXITY_API_KEY"), BaseURL: v.GetString("PERPLEXITY_BASE_URL"), Model: v.GetString("PERPLEXITY_MODEL")},

		DefaultProvider: strings.ToLower(v.GetString("DEFAULT_PROVIDER")),

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		Cache: CacheConfig{
			Mode: strings.ToLower(v.GetString("CACHE_MODE")),
			TTL:  v.GetDuration("CACHE_TTL"),
		},

		RateLimit: RateLimitConfig{
			MinCallInterval: v.GetDuration("MIN_CALL_INTERVAL"),
			RPMLimit:        v.GetInt("RPM_LIMIT"),
		},

		Retry: RetryConfig{
			MaxAttempts: v.GetInt("RETRY_MAX_ATTEMPTS"),
			BaseDelay:   v.GetDuration("RETRY_BASE_DELAY"),
			Jitter:      v.GetDuration("RETRY_JITTER"),
		},

		ProviderTimeout: v.GetDuration("PROVIDER_TIMEOUT"),
		AgentsDBPath:    v.GetString("AGENTS_DB_PATH"),
		ClickHouseURL:   v.GetString("CLICKHOUSE_URL"),
		CORSOrigins:     v.GetStringSlice("CORS_ORIGINS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as
// defaults.
func (c *Config) validate() error {
	if c.Cache.Mode == "redis" && c.Redis.URL == "" {
		return fmt.Errorf(
			"config: REDIS_URL is required when CACHE_MODE=redis; " +
				"set CACHE_MODE=memory to use the built-in in-process cache",
		)
	}

	switch c.Cache.Mode {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf(
			"config: invalid CACHE_MODE %q; must be one of: redis, memory, none",
			c.Cache.Mode,
		)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: RETRY_MAX_ATTEMPTS must be ≥ 1, got %d", c.Retry.MaxAttempts)
	}
	if c.RateLimit.MinCallInterval < 0 {
		return fmt.Errorf("config: MIN_CALL_INTERVAL must not be negative")
	}
	if c.RateLimit.RPMLimit < 0 {
		return fmt.Errorf("config: RPM_LIMIT must not be negative, got %d", c.RateLimit.RPMLimit)
	}

	return nil
}

// AtLeastOneProviderKey returns true if at least one provider is configured.
// Startup logs a warning when this is false; the server still runs.
func (c *Config) AtLeastOneProviderKey() bool {
	return c.Gemini.APIKey != "" ||
		c.OpenAI.APIKey != "" ||
		c.Anthropic.APIKey != "" ||
		c.Perplexity.APIKey != ""
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
