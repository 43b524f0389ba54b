// Package gateway is the core request dispatcher of the AERO backend.
//
// Each research endpoint resolves a provider, checks the response cache,
// paces the outbound call, and retries rate-limited attempts with
// exponential backoff. The frontend contract is lenient: provider failures
// degrade into a successful envelope rather than surfacing an error status.
//
// Key design constraints:
//   - Cache, pacer, rate limiter, logger, and metrics are optional and nil-safe.
//   - All upstream I/O uses context.Context so timeouts propagate correctly.
//   - Streaming responses are NDJSON pass-through; they are never cached.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/aerolabs/aero-backend/internal/agents"
	"github.com/aerolabs/aero-backend/internal/cache"
	"github.com/aerolabs/aero-backend/internal/logger"
	"github.com/aerolabs/aero-backend/internal/metrics"
	"github.com/aerolabs/aero-backend/internal/prompts"
	"github.com/aerolabs/aero-backend/internal/providers"
	"github.com/aerolabs/aero-backend/internal/ratelimit"
	"github.com/google/uuid"
)

// DegradedUnavailable is the degraded_reason value for non-retryable
// provider failures.
const DegradedUnavailable = "provider_unavailable"

// UnavailableText is returned when a provider fails for a reason other than
// rate limiting and no fallback absorbed the error.
const UnavailableText = "I'm sorry, I couldn't reach the AI service just now. Please try again."

// GatewayOptions holds optional tuning parameters for a Gateway. All fields
// have sensible defaults and can be omitted.
type GatewayOptions struct {
	// Logger is the structured logger used for request events. Defaults to
	// slog.Default when nil.
	Logger *slog.Logger

	// Retry bounds the backoff loop around rate-limited provider calls.
	// Zero values use DefaultRetryPolicy.
	Retry RetryPolicy

	// ProviderTimeout is the per-request upstream timeout.
	// Default: providers.ProviderTimeout (60s).
	ProviderTimeout time.Duration

	// CacheTTL controls how long identical prompts are answered from cache.
	// Default: 1 minute.
	CacheTTL time.Duration

	// Metrics enables Prometheus metrics collection. When nil, metrics are
	// disabled.
	Metrics *metrics.Registry
}

// Gateway dispatches research requests to AI providers — all dependencies
// are injected via the constructor so they can be replaced with test doubles.
type Gateway struct {
	registry *providers.Registry
	cache    cache.Cache
	pacer    *ratelimit.Pacer
	health   *HealthChecker
	baseCtx  context.Context
	log      *slog.Logger
	metrics  *metrics.Registry

	retry           RetryPolicy
	providerTimeout time.Duration
	cacheTTL        time.Duration

	// Optional dependencies — nil-safe when not configured.
	rpmLimiter *ratelimit.RPMLimiter
	reqLogger  *logger.Logger
	agents     *agents.Store

	corsOrigins []string
}

// NewGateway creates a Gateway with default settings.
func NewGateway(ctx context.Context, reg *providers.Registry, c cache.Cache) *Gateway {
	return NewGatewayWithOptions(ctx, reg, c, nil, GatewayOptions{})
}

// NewGatewayWithOptions creates a fully configured Gateway. Use this when you
// need to customise the logger, retry policy, or cache TTL.
func NewGatewayWithOptions(
	baseCtx context.Context,
	reg *providers.Registry,
	c cache.Cache,
	cacheReady func() bool,
	opts GatewayOptions,
) *Gateway {
	if baseCtx == nil {
		panic("gateway: context must not be nil")
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	retry := opts.Retry
	if retry.MaxAttempts < 1 {
		retry = DefaultRetryPolicy()
	}

	providerTimeout := opts.ProviderTimeout
	if providerTimeout <= 0 {
		providerTimeout = providers.ProviderTimeout
	}

	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}

	gw := &Gateway{
		registry:        reg,
		cache:           c,
		baseCtx:         baseCtx,
		log:             log,
		retry:           retry,
		providerTimeout: providerTimeout,
		cacheTTL:        cacheTTL,
		metrics:         opts.Metrics,
	}

	if reg != nil && len(reg.All()) > 0 {
		gw.health = NewHealthChecker(baseCtx, reg, cacheReady, gw.metrics)
	}

	return gw
}

// SetPacer injects the per-provider call spacer.
func (g *Gateway) SetPacer(p *ratelimit.Pacer) { g.pacer = p }

// SetRateLimiters injects the inbound RPM rate limiter.
func (g *Gateway) SetRateLimiters(rpm *ratelimit.RPMLimiter) { g.rpmLimiter = rpm }

// SetLogger injects the async request logger (e.g. for ClickHouse or stdout).
func (g *Gateway) SetLogger(l *logger.Logger) { g.reqLogger = l }

// SetAgentStore injects the agent persistence layer used by the builder
// endpoints and registers its readiness probe.
func (g *Gateway) SetAgentStore(s *agents.Store) {
	g.agents = s
	if g.health != nil && s != nil {
		g.health.SetDBReady(func() bool {
			ctx, cancel := context.WithTimeout(g.baseCtx, time.Second)
			defer cancel()
			return s.Ready(ctx)
		})
	}
}

// SetCORSOrigins configures the allowed CORS origins for the gateway.
func (g *Gateway) SetCORSOrigins(origins []string) { g.corsOrigins = origins }

// GenInput is a normalized generation request from any endpoint.
type GenInput struct {
	Task       prompts.Task
	Prompt     string
	ProviderID string
	Stream     bool
	RequestID  string
}

// GenOutput is the data section of a successful envelope.
type GenOutput struct {
	Summary        string `json:"summary"`
	Provider       string `json:"provider"`
	Raw            string `json:"raw,omitempty"`
	Cached         bool   `json:"cached"`
	Degraded       bool   `json:"degraded"`
	DegradedReason string `json:"degraded_reason,omitempty"`

	// Stream carries incremental updates for streaming requests; nil
	// otherwise. Not part of the JSON envelope.
	Stream <-chan providers.Update `json:"-"`
}

// Generate runs the full dispatch pipeline for one request: cache lookup,
// pacing, the bounded retry loop, and cache population. It only errors on
// context cancellation — provider failures come back as degraded outputs.
func (g *Gateway) Generate(ctx context.Context, in GenInput) (*GenOutput, error) {
	start := time.Now()

	prov, servedID := g.registry.Resolve(in.ProviderID)

	// 1. Cache lookup — non-streaming only.
	var key string
	if !in.Stream && g.cache != nil {
		key = cache.Fingerprint(servedID, in.Prompt)
		if body, ok := g.cache.Get(ctx, key); ok {
			if g.metrics != nil {
				g.metrics.CacheGetHit()
			}
			g.log.DebugContext(ctx, "cache_hit",
				slog.String("request_id", in.RequestID),
				slog.String("task", string(in.Task)),
				slog.String("provider", servedID),
			)
			g.logRequest(in, servedID, time.Since(start), 200, true, false)
			return &GenOutput{
				Summary:  string(body),
				Provider: servedID,
				Cached:   true,
			}, nil
		}
		if g.metrics != nil {
			g.metrics.CacheGetMiss()
		}
	} else if g.metrics != nil {
		g.metrics.CacheGetBypass()
	}

	// 2. Pace the outbound call so we stay under per-provider quotas.
	if g.pacer != nil {
		paceStart := time.Now()
		if err := g.pacer.Acquire(ctx, servedID); err != nil {
			return nil, err
		}
		if g.metrics != nil {
			g.metrics.ObservePacerWait(servedID, time.Since(paceStart))
		}
	}

	// 3. Call the provider with bounded retry on rate limits.
	provCtx := ctx
	var cancel context.CancelFunc
	if !in.Stream {
		provCtx, cancel = context.WithTimeout(ctx, g.providerTimeout)
		defer cancel()
	}

	req := &providers.GenRequest{
		Prompt:    in.Prompt,
		Stream:    in.Stream,
		RequestID: in.RequestID,
	}

	upStart := time.Now()
	res, err := retryGenerate(provCtx, prov, req, g.retry, func(attempt int, d time.Duration) {
		if g.metrics != nil {
			g.metrics.RecordRetrySleep(servedID)
		}
		g.log.WarnContext(ctx, "rate_limited_retry",
			slog.String("request_id", in.RequestID),
			slog.String("provider", servedID),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", d),
		)
	})
	upDur := time.Since(upStart)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return g.degrade(ctx, in, servedID, err, upDur, start), nil
	}

	if g.metrics != nil {
		g.metrics.ObserveUpstreamAttempt(servedID, "success", upDur)
	}

	// 4a. Streaming — hand the update channel to the response writer.
	if in.Stream && res.Stream != nil {
		return &GenOutput{Provider: servedID, Stream: res.Stream}, nil
	}

	// 4b. Populate the cache for future identical prompts.
	if key != "" {
		if cerr := g.cache.Set(ctx, key, []byte(res.Summary), g.cacheTTL); cerr != nil {
			if g.metrics != nil {
				g.metrics.CacheSetError()
			}
			g.log.WarnContext(ctx, "cache_set_failed",
				slog.String("request_id", in.RequestID),
				slog.String("error", cerr.Error()),
			)
		} else if g.metrics != nil {
			g.metrics.CacheSetOK()
		}
	}

	g.logRequest(in, servedID, time.Since(start), 200, false, false)
	g.log.DebugContext(ctx, "response_ok",
		slog.String("request_id", in.RequestID),
		slog.String("task", string(in.Task)),
		slog.String("provider", servedID),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &GenOutput{
		Summary:  res.Summary,
		Provider: servedID,
		Raw:      string(res.Raw),
	}, nil
}

// degrade converts an upstream failure into a successful degraded envelope.
// Exhausted retries get the fixed apology; everything else gets the generic
// unavailable message.
func (g *Gateway) degrade(
	ctx context.Context,
	in GenInput,
	servedID string,
	err error,
	upDur time.Duration,
	start time.Time,
) *GenOutput {
	reason := DegradedUnavailable
	summary := UnavailableText
	if isExhausted(err) {
		reason = DegradedRateLimited
		summary = ApologyText
	}

	if g.metrics != nil {
		g.metrics.ObserveUpstreamAttempt(servedID, reason, upDur)
		g.metrics.RecordDegraded(servedID, reason)
	}
	g.log.ErrorContext(ctx, "provider_degraded",
		slog.String("request_id", in.RequestID),
		slog.String("task", string(in.Task)),
		slog.String("provider", servedID),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
		slog.Duration("elapsed", time.Since(start)),
	)
	g.logRequest(in, servedID, time.Since(start), 200, false, true)

	return &GenOutput{
		Summary:        summary,
		Provider:       servedID,
		Degraded:       true,
		DegradedReason: reason,
	}
}

// logRequest enqueues a RequestLog entry to the async logger. Never blocks.
func (g *Gateway) logRequest(
	in GenInput,
	provider string,
	latency time.Duration,
	status int,
	isCached, isDegraded bool,
) {
	if g.reqLogger == nil {
		return
	}

	reqUUID, _ := uuid.Parse(in.RequestID)

	// Clamp to uint16 max so we don't overflow the field.
	latencyMs := uint16(latency.Milliseconds())
	if latency.Milliseconds() > 65535 {
		latencyMs = 65535
	}

	g.reqLogger.Log(logger.RequestLog{
		ID:        reqUUID,
		Task:      string(in.Task),
		Provider:  provider,
		LatencyMs: latencyMs,
		Status:    uint16(status),
		Cached:    isCached,
		Degraded:  isDegraded,
		CreatedAt: time.Now(),
	})
}
