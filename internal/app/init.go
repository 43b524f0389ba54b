package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aerolabs/aero-backend/internal/agents"
	aeroCache "github.com/aerolabs/aero-backend/internal/cache"
	"github.com/aerolabs/aero-backend/internal/gateway"
	"github.com/aerolabs/aero-backend/internal/logger"
	"github.com/aerolabs/aero-backend/internal/metrics"
	"github.com/aerolabs/aero-backend/internal/providers"
	"github.com/aerolabs/aero-backend/internal/ratelimit"
)

// initInfra establishes optional external connections.
// Redis is only required when CACHE_MODE=redis or RPM_LIMIT is set.
func (a *App) initInfra(ctx context.Context) error {
	needRedis := a.cfg.Cache.Mode == "redis" || (a.cfg.RateLimit.RPMLimit > 0 && a.cfg.Redis.URL != "")
	if needRedis {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	store, err := agents.Open(a.cfg.AgentsDBPath)
	if err != nil {
		return fmt.Errorf("agent store: %w", err)
	}
	a.agentsDB = store
	a.log.Info("agent store ready", slog.String("path", a.cfg.AgentsDBPath))

	return nil
}

// initProviders builds the closed provider set. All four strategies are
// registered regardless of which keys are present; startup only warns when
// everything will degrade.
func (a *App) initProviders(_ context.Context) error {
	provs := buildProviders(a.baseCtx, a.cfg)
	a.registry = providers.NewRegistry(provs, defaultID(a.cfg))

	if !a.cfg.AtLeastOneProviderKey() {
		a.log.Warn("no provider API keys configured; all responses will be degraded")
	}
	a.log.Info("providers loaded",
		slog.Any("providers", a.registry.Names()),
		slog.String("default", a.registry.DefaultID()),
	)

	return nil
}

// initServices creates the cache backend, async request logger, and
// Prometheus metrics registry.
func (a *App) initServices(ctx context.Context) error {
	switch a.cfg.Cache.Mode {
	case "redis":
		a.log.Info("cache backend: redis")

	case "memory":
		a.memCache = aeroCache.NewMemoryCache(ctx)
		a.log.Info("cache backend: memory (in-process)")

	case "none":
		a.log.Info("cache backend: disabled")

	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	// Async request logger. ClickHouse when configured, slog otherwise.
	var sink logger.Sink
	if a.cfg.ClickHouseURL != "" {
		chSink, err := logger.NewClickHouseSink(ctx, a.cfg.ClickHouseURL)
		if err != nil {
			return fmt.Errorf("clickhouse sink: %w", err)
		}
		sink = chSink
		a.log.Info("request logs: clickhouse")
	}
	reqLogger, err := logger.New(ctx, a.log, sink)
	if err != nil {
		return fmt.Errorf("request logger: %w", err)
	}
	a.reqLogger = reqLogger

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	return nil
}

// initGateway wires together the Gateway with all configured subsystems.
func (a *App) initGateway(_ context.Context) error {
	var cacheImpl aeroCache.Cache
	var cacheReady func() bool

	switch a.cfg.Cache.Mode {
	case "redis":
		cacheImpl = aeroCache.NewRedisCacheFromClient(a.rdb)
		cacheReady = redisPinger(a.baseCtx, a.rdb)
	case "memory":
		cacheImpl = a.memCache
		cacheReady = func() bool { return true }
	case "none":
		// nil cache — gateway handles nil gracefully (no caching)
	}

	opts := gateway.GatewayOptions{
		Logger: a.log,
		Retry: gateway.RetryPolicy{
			MaxAttempts: a.cfg.Retry.MaxAttempts,
			BaseDelay:   a.cfg.Retry.BaseDelay,
			Jitter:      a.cfg.Retry.Jitter,
		},
		ProviderTimeout: a.cfg.ProviderTimeout,
		CacheTTL:        a.cfg.Cache.TTL,
		Metrics:         a.prom,
	}

	gw := gateway.NewGatewayWithOptions(a.baseCtx, a.registry, cacheImpl, cacheReady, opts)

	// Outbound pacing keeps successive calls to one provider apart.
	gw.SetPacer(ratelimit.NewPacer(a.cfg.RateLimit.MinCallInterval))

	// Inbound rate limiting — only when Redis is available.
	if a.rdb != nil && a.cfg.RateLimit.RPMLimit > 0 {
		gw.SetRateLimiters(ratelimit.NewRPMLimiter(a.rdb, a.cfg.RateLimit.RPMLimit))
		a.log.Info("rate limiting enabled", slog.Int("rpm_limit", a.cfg.RateLimit.RPMLimit))
	}

	gw.SetLogger(a.reqLogger)
	gw.SetAgentStore(a.agentsDB)
	gw.SetCORSOrigins(a.cfg.CORSOrigins)

	a.mgmt = &gateway.ManagementRoutes{
		Metrics: a.prom.Handler(),
	}

	a.gw = gw

	return nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
