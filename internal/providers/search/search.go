// Package search implements providers.Provider for a search-answering
// service (Perplexity-compatible chat API, hand-rolled HTTP client).
//
// When the search backend is not configured or unavailable, the strategy
// reroutes the call to a fallback text-generation provider. The envelope
// still reports provider "search" — downstream consumers branch on the
// identifier they asked for, so it must survive the reroute.
package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aerolabs/aero-backend/internal/providers"
)

const (
	defaultBaseURL = "https://api.perplexity.ai"
	providerName   = "search"
	defaultModel   = "sonar"
)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Error   *apiErr  `json:"error,omitempty"`
}

type choice struct {
	Message      *chatMessage `json:"message,omitempty"`
	Delta        *chatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason"`
}

type apiErr struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type Provider struct {
	apiKey   string
	baseURL  string
	model    string
	client   *http.Client
	fallback providers.Provider
}

type Option func(*Provider)

// WithBaseURL overrides the API base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithModel overrides the default model name.
func WithModel(m string) Option {
	return func(p *Provider) { p.model = m }
}

// WithFallback sets the text-generation strategy used when the search
// backend is unconfigured or fails.
func WithFallback(fb providers.Provider) Option {
	return func(p *Provider) { p.fallback = fb }
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		client:  &http.Client{Timeout: providers.ProviderTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.apiKey == "" {
		if p.fallback != nil {
			return p.fallback.HealthCheck(ctx)
		}
		return providers.ErrNoCredential
	}

	// The chat endpoint is the only surface; probe with a minimal request.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("search: health check: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("search: health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("search: health check: status %d", resp.StatusCode)
	}
	return nil
}

func (p *Provider) Generate(ctx context.Context, req *providers.GenRequest) (*providers.GenResult, error) {
	if p.apiKey == "" {
		return p.reroute(ctx, req, fmt.Errorf("search: %w", providers.ErrNoCredential))
	}

	res, err := p.call(ctx, req)
	if err != nil {
		// Rate limiting is the retry executor's problem, not a reason to
		// abandon the search backend.
		if providers.IsRateLimited(err) {
			return nil, err
		}
		return p.reroute(ctx, req, err)
	}
	return res, nil
}

// reroute delegates to the fallback strategy. Without a fallback the
// original error is surfaced.
func (p *Provider) reroute(ctx context.Context, req *providers.GenRequest, cause error) (*providers.GenResult, error) {
	if p.fallback == nil {
		return nil, cause
	}
	return p.fallback.Generate(ctx, req)
}

func (p *Provider) call(ctx context.Context, req *providers.GenRequest) (*providers.GenResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
		Stream:   req.Stream,
	})
	if err != nil {
		return nil, fmt.Errorf("search: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, p.parseError(resp)
	}

	if req.Stream {
		return p.handleStreaming(ctx, resp), nil
	}
	defer resp.Body.Close()

	return p.handleResponse(resp)
}

func (p *Provider) handleResponse(resp *http.Response) (*providers.GenResult, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	content := ""
	if len(cr.Choices) > 0 && cr.Choices[0].Message != nil {
		content = cr.Choices[0].Message.Content
	}

	return &providers.GenResult{
		Summary: content,
		Raw:     raw,
	}, nil
}

func (p *Provider) handleStreaming(ctx context.Context, resp *http.Response) *providers.GenResult {
	ch := make(chan providers.Update, 64)

	go func() {
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			var cr chatResponse
			if err := json.Unmarshal([]byte(data), &cr); err != nil {
				continue
			}
			if len(cr.Choices) == 0 || cr.Choices[0].Delta == nil {
				continue
			}

			select {
			case ch <- providers.Update{Text: cr.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case ch <- providers.Update{Done: true}:
		case <-ctx.Done():
		}
	}()

	return &providers.GenResult{Stream: ch}
}

func (p *Provider) parseError(resp *http.Response) error {
	var cr chatResponse
	msg := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&cr); err == nil && cr.Error != nil {
		msg = cr.Error.Message
	}
	return &providers.Error{
		Provider:   providerName,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}
