// Package gemini implements providers.Provider for Google Gemini using the
// official GenAI SDK. This is the default strategy for research tasks.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/aerolabs/aero-backend/internal/providers"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-2.0-flash"
)

// Provider calls the Gemini generateContent API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *genai.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel overrides the default model name.
func WithModel(m string) Option {
	return func(p *Provider) { p.model = m }
}

// WithBaseURL overrides the API base URL (useful for testing).
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// New creates a Gemini Provider. An empty apiKey is allowed — Generate then
// returns providers.ErrNoCredential at call time so the gateway can degrade.
func New(ctx context.Context, apiKey string, opts ...Option) *Provider {
	if ctx == nil {
		panic("gemini: context must not be nil")
	}
	p := &Provider{
		apiKey: apiKey,
		model:  defaultModel,
	}
	for _, o := range opts {
		o(p)
	}

	if p.apiKey == "" {
		return p
	}

	cfg := &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: providers.ProviderTimeout},
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return p
	}
	p.client = client

	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.client == nil {
		return providers.ErrNoCredential
	}
	_, err := p.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1})
	if err != nil {
		return fmt.Errorf("gemini: health check: %w", toProviderError(err))
	}
	return nil
}

func (p *Provider) Generate(ctx context.Context, req *providers.GenRequest) (*providers.GenResult, error) {
	if p.client == nil {
		return nil, fmt.Errorf("gemini: %w", providers.ErrNoCredential)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	if req.Stream {
		return p.handleStreaming(ctx, contents), nil
	}
	return p.handleResponse(ctx, contents)
}

func (p *Provider) handleResponse(ctx context.Context, contents []*genai.Content) (*providers.GenResult, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, toProviderError(err)
	}

	out := ""
	if resp != nil {
		out = resp.Text()
	}

	raw, _ := json.Marshal(resp)

	return &providers.GenResult{
		Summary: out,
		Raw:     raw,
	}, nil
}

func (p *Provider) handleStreaming(ctx context.Context, contents []*genai.Content) *providers.GenResult {
	ch := make(chan providers.Update, 64)

	go func() {
		defer close(ch)

		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, nil) {
			if err != nil {
				select {
				case ch <- providers.Update{Text: fmt.Sprintf("[stream error] %v", err), Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if resp == nil {
				continue
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case ch <- providers.Update{Text: text}:
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

func toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &providers.Error{
			Provider:   providerName,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
		}
	}
	return err
}
