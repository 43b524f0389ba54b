// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra     — external connections (Redis, ClickHouse, SQLite)
//  2. initProviders — AI provider strategies
//  3. initServices  — cache, request logger, metrics registry
//  4. initGateway   — gateway + management routes
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/aerolabs/aero-backend/internal/agents"
	aeroCache "github.com/aerolabs/aero-backend/internal/cache"
	"github.com/aerolabs/aero-backend/internal/config"
	"github.com/aerolabs/aero-backend/internal/gateway"
	"github.com/aerolabs/aero-backend/internal/logger"
	"github.com/aerolabs/aero-backend/internal/metrics"
	"github.com/aerolabs/aero-backend/internal/providers"
	anthropicprov "github.com/aerolabs/aero-backend/internal/providers/anthropic"
	geminiprov "github.com/aerolabs/aero-backend/internal/providers/gemini"
	openaiprov "github.com/aerolabs/aero-backend/internal/providers/openai"
	searchprov "github.com/aerolabs/aero-backend/internal/providers/search"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections — nil when not configured.
	rdb *redis.Client

	reqLogger *logger.Logger
	memCache  *aeroCache.MemoryCache
	agentsDB  *agents.Store

	prom *metrics.Registry

	registry *providers.Registry
	mgmt     *gateway.ManagementRoutes
	gw       *gateway.Gateway
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"providers", a.initProviders},
		{"services", a.initServices},
		{"gateway", a.initGateway},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or an error
// occurs. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting backend",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("cache_mode", a.cfg.Cache.Mode),
		slog.String("default_provider", a.cfg.DefaultProvider),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.gw.StartWithRoutes(addr, a.mgmt)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times and from multiple goroutines.
func (a *App) Close() {
	if a.reqLogger != nil {
		if err := a.reqLogger.Close(); err != nil {
			a.log.Error("logger close error", slog.String("error", err.Error()))
		}
		a.reqLogger = nil
	}
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.agentsDB != nil {
		if err := a.agentsDB.Close(); err != nil {
			a.log.Error("agent store close error", slog.String("error", err.Error()))
		}
		a.agentsDB = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// ── Private helpers ──────────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
// Returns an error — callers decide whether to fatal or degrade.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// redisPinger returns a zero-argument probe function suitable for the
// HealthChecker. Reuses the existing client — no new connections.
func redisPinger(ctx context.Context, rdb *redis.Client) func() bool {
	return func() bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err() == nil
	}
}

// buildProviders creates the closed provider set. Every provider is always
// registered — a missing key degrades at call time rather than removing the
// strategy, so requests naming it still resolve.
func buildProviders(ctx context.Context, cfg *config.Config) map[string]providers.Provider {
	provs := make(map[string]providers.Provider)

	var geminiOpts []geminiprov.Option
	if cfg.Gemini.BaseURL != "" {
		geminiOpts = append(geminiOpts, geminiprov.WithBaseURL(cfg.Gemini.BaseURL))
	}
	if cfg.Gemini.Model != "" {
		geminiOpts = append(geminiOpts, geminiprov.WithModel(cfg.Gemini.Model))
	}
	provs[providers.Gemini] = geminiprov.New(ctx, cfg.Gemini.APIKey, geminiOpts...)

	var openaiOpts []openaiprov.Option
	if cfg.OpenAI.BaseURL != "" {
		openaiOpts = append(openaiOpts, openaiprov.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	if cfg.OpenAI.Model != "" {
		openaiOpts = append(openaiOpts, openaiprov.WithModel(cfg.OpenAI.Model))
	}
	provs[providers.OpenAI] = openaiprov.New(cfg.OpenAI.APIKey, openaiOpts...)

	var anthropicOpts []anthropicprov.Option
	if cfg.Anthropic.BaseURL != "" {
		anthropicOpts = append(anthropicOpts, anthropicprov.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	if cfg.Anthropic.Model != "" {
		anthropicOpts = append(anthropicOpts, anthropicprov.WithModel(cfg.Anthropic.Model))
	}
	provs[providers.Anthropic] = anthropicprov.New(cfg.Anthropic.APIKey, anthropicOpts...)

	searchOpts := []searchprov.Option{
		searchprov.WithFallback(provs[defaultID(cfg)]),
	}
	if cfg.Perplexity.BaseURL != "" {
		searchOpts = append(searchOpts, searchprov.WithBaseURL(cfg.Perplexity.BaseURL))
	}
	if cfg.Perplexity.Model != "" {
		searchOpts = append(searchOpts, searchprov.WithModel(cfg.Perplexity.Model))
	}
	provs[providers.Search] = searchprov.New(cfg.Perplexity.APIKey, searchOpts...)

	return provs
}

func defaultID(cfg *config.Config) string {
	for _, id := range providers.KnownProviders {
		if id == cfg.DefaultProvider {
			return id
		}
	}
	return providers.Gemini
}
