package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aerolabs/aero-backend/internal/agents"
	"github.com/aerolabs/aero-backend/internal/prompts"
	"github.com/aerolabs/aero-backend/pkg/apierr"
	"github.com/valyala/fasthttp"
)

type (
	// generateRequest is the shared body shape of the research endpoints.
	// experiment-design historically used user_input/stream instead of
	// prompt/streaming, so both spellings are accepted everywhere.
	generateRequest struct {
		Prompt     string `json:"prompt"`
		UserInput  string `json:"user_input"`
		ProviderID string `json:"providerId"`
		Streaming  bool   `json:"streaming"`
		Stream     bool   `json:"stream"`

		// Extra context for experiment-suggestions and write-paper.
		Query               string         `json:"query"`
		Data                map[string]any `json:"data"`
		ExperimentalResults map[string]any `json:"experimental_results"`
	}

	okEnvelope struct {
		OK   bool `json:"ok"`
		Data any  `json:"data"`
	}
)

func (r *generateRequest) prompt() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	if r.UserInput != "" {
		return r.UserInput
	}
	return r.Query
}

func (r *generateRequest) streaming() bool {
	return r.Streaming || r.Stream
}

// dispatchGenerate is the shared handler for every prompt-driven endpoint:
// parse, inbound rate limit, Generate, and envelope (or NDJSON stream).
func (g *Gateway) dispatchGenerate(ctx *fasthttp.RequestCtx, task prompts.Task) {
	start := time.Now()
	route := string(task)
	streaming := false

	if g.metrics != nil {
		g.metrics.IncInFlight()
	}
	defer func() {
		if g.metrics == nil || streaming {
			return // streaming is finalised by the stream writer
		}
		g.metrics.DecInFlight()
		g.metrics.ObserveHTTP(route, ctx.Response.StatusCode(), time.Since(start))
	}()

	reqID, _ := ctx.UserValue("request_id").(string)

	var req generateRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteBadRequest(ctx, fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}

	userPrompt := strings.TrimSpace(req.prompt())
	if userPrompt == "" {
		apierr.WriteMissingField(ctx, "prompt")
		return
	}

	if !g.allowInbound(ctx, reqID) {
		return
	}

	full := prompts.Build(task, userPrompt)
	switch task {
	case prompts.ExperimentSuggestions:
		full = prompts.WithData(full, req.ExperimentalResults)
	case prompts.WritePaper:
		full = prompts.WithData(full, req.Data)
	}

	g.log.InfoContext(ctx, "request",
		slog.String("request_id", reqID),
		slog.String("task", route),
		slog.String("provider", req.ProviderID),
		slog.Bool("stream", req.streaming()),
	)

	out, err := g.Generate(ctx, GenInput{
		Task:       task,
		Prompt:     full,
		ProviderID: req.ProviderID,
		Stream:     req.streaming(),
		RequestID:  reqID,
	})
	if err != nil {
		// Only cancellation reaches here; the client is already gone.
		ctx.SetStatusCode(fasthttp.StatusRequestTimeout)
		return
	}

	if out.Stream != nil {
		streaming = true
		capturedStart := start
		writeNDJSON(ctx, out.Provider, out.Stream, func(lines int) {
			g.logRequest(GenInput{Task: task, RequestID: reqID}, out.Provider,
				time.Since(capturedStart), fasthttp.StatusOK, false, false)
			if g.metrics != nil {
				g.metrics.DecInFlight()
				g.metrics.ObserveHTTP(route, fasthttp.StatusOK, time.Since(capturedStart))
			}
		})
		return
	}

	writeOK(ctx, out)
}

// allowInbound applies the RPM guard. Returns false after writing the 429.
func (g *Gateway) allowInbound(ctx *fasthttp.RequestCtx, reqID string) bool {
	if g.rpmLimiter == nil {
		return true
	}
	allowed, err := g.rpmLimiter.Allow(ctx)
	if err == nil && !allowed {
		if g.metrics != nil {
			g.metrics.RecordRateLimit("blocked")
		}
		g.log.WarnContext(ctx, "rate_limit_exceeded", slog.String("request_id", reqID))
		apierr.WriteRateLimit(ctx)
		return false
	}
	if g.metrics != nil {
		if err != nil {
			g.metrics.RecordRateLimit("error")
		} else {
			g.metrics.RecordRateLimit("allowed")
		}
	}
	return true
}

// ── Agent builder ─────────────────────────────────────────────────────────────

type agentBuilderRequest struct {
	AgentName   string          `json:"agentName"`
	AgentDesc   string          `json:"agentDesc"`
	AgentPrompt string          `json:"agentPrompt"`
	Formality   int             `json:"formality"`
	Creativity  int             `json:"creativity"`
	Toggles     map[string]bool `json:"toggles"`
	ModelPick   string          `json:"modelPick"`
	ProviderID  string          `json:"providerId"`
}

// handleBuildAgent persists the agent configuration and returns it together
// with a generated research plan for the agent's purpose.
func (g *Gateway) handleBuildAgent(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	route := string(prompts.BuildAgent)

	if g.metrics != nil {
		g.metrics.IncInFlight()
	}
	defer func() {
		if g.metrics == nil {
			return
		}
		g.metrics.DecInFlight()
		g.metrics.ObserveHTTP(route, ctx.Response.StatusCode(), time.Since(start))
	}()

	reqID, _ := ctx.UserValue("request_id").(string)

	var req agentBuilderRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteBadRequest(ctx, fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}
	if strings.TrimSpace(req.AgentName) == "" {
		apierr.WriteMissingField(ctx, "agentName")
		return
	}

	if !g.allowInbound(ctx, reqID) {
		return
	}

	prompt := prompts.ForAgent(prompts.AgentSpec{
		Name:         req.AgentName,
		Description:  req.AgentDesc,
		SystemPrompt: req.AgentPrompt,
		Formality:    req.Formality,
		Creativity:   req.Creativity,
		Toggles:      req.Toggles,
		ModelPick:    req.ModelPick,
	})

	out, err := g.Generate(ctx, GenInput{
		Task:       prompts.BuildAgent,
		Prompt:     prompt,
		ProviderID: req.ProviderID,
		RequestID:  reqID,
	})
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusRequestTimeout)
		return
	}

	resp := map[string]any{
		"ok":            true,
		"research_plan": out,
	}

	if g.agents != nil {
		saved, serr := g.agents.Create(ctx, agents.Agent{
			Name:         req.AgentName,
			Description:  req.AgentDesc,
			SystemPrompt: req.AgentPrompt,
			Formality:    req.Formality,
			Creativity:   req.Creativity,
			Toggles:      req.Toggles,
			ModelPick:    req.ModelPick,
		})
		if serr != nil {
			g.log.ErrorContext(ctx, "agent_store_failed",
				slog.String("request_id", reqID),
				slog.String("error", serr.Error()),
			)
			resp["agent"] = req
		} else {
			resp["agent"] = saved
		}
	} else {
		resp["agent"] = req
	}

	writeJSON(ctx, resp)
}

// handleListAgents returns every stored agent configuration.
func (g *Gateway) handleListAgents(ctx *fasthttp.RequestCtx) {
	if g.agents == nil {
		writeJSON(ctx, map[string]any{"agents": []agents.Agent{}})
		return
	}
	list, err := g.agents.List(ctx)
	if err != nil {
		g.log.ErrorContext(ctx, "agent_list_failed", slog.String("error", err.Error()))
		list = nil
	}
	if list == nil {
		list = []agents.Agent{}
	}
	writeJSON(ctx, map[string]any{"agents": list})
}

func writeOK(ctx *fasthttp.RequestCtx, data any) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	writeJSON(ctx, okEnvelope{OK: true, Data: data})
}
