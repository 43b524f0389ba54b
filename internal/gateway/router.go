package gateway

import (
	"encoding/json"
	"time"

	"github.com/aerolabs/aero-backend/internal/prompts"
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

// RouteHandler is a fasthttp handler function.
type RouteHandler = fasthttp.RequestHandler

// ManagementRoutes holds optional management API handler functions
// that are registered alongside the API routes.
type ManagementRoutes struct {
	Metrics RouteHandler
}

// Handler builds the full fasthttp handler: routes plus middleware chain.
// Exposed separately from Start so tests can drive it over an in-memory
// listener.
func (g *Gateway) Handler(mgmt *ManagementRoutes) fasthttp.RequestHandler {
	r := router.New()

	r.POST("/api/model-research", g.taskHandler(prompts.ModelResearch))
	r.POST("/api/research-plan", g.taskHandler(prompts.ResearchPlan))
	r.POST("/api/experiment-design", g.taskHandler(prompts.ExperimentDesign))
	r.POST("/api/experiment-suggestions", g.taskHandler(prompts.ExperimentSuggestions))
	r.POST("/api/write-paper", g.taskHandler(prompts.WritePaper))
	r.POST("/api/build-agent", g.handleBuildAgent)
	r.GET("/api/agents", g.handleListAgents)
	r.GET("/api/health", g.handleHealth)
	r.GET("/readiness", g.handleReadiness)

	if mgmt != nil && mgmt.Metrics != nil {
		r.GET("/metrics", mgmt.Metrics)
	}

	return applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		corsHandler(g.corsOrigins),
		securityHeaders,
	)
}

// Start starts the HTTP server on addr (e.g. ":8000").
// Pass nil for routes to start without management endpoints.
func (g *Gateway) Start(addr string) error {
	return g.StartWithRoutes(addr, nil)
}

// StartWithRoutes starts the HTTP server with optional management routes.
func (g *Gateway) StartWithRoutes(addr string, mgmt *ManagementRoutes) error {
	srv := &fasthttp.Server{
		Handler:      g.Handler(mgmt),
		ReadTimeout:  90 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	return srv.ListenAndServe(addr)
}

func (g *Gateway) taskHandler(task prompts.Task) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		g.dispatchGenerate(ctx, task)
	}
}

func (g *Gateway) handleHealth(ctx *fasthttp.RequestCtx) {
	if g.health == nil {
		writeJSON(ctx, map[string]any{"ok": true, "message": "AERO backend running"})
		return
	}
	writeJSON(ctx, g.health.Snapshot())
}

func (g *Gateway) handleReadiness(ctx *fasthttp.RequestCtx) {
	if g.health == nil || g.health.ReadinessOK() {
		writeJSON(ctx, map[string]string{"status": "ok"})
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	writeJSON(ctx, map[string]string{"status": "unavailable"})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
