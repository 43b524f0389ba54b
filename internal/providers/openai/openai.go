// Package openai implements providers.Provider on top of the official
// OpenAI Go SDK.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/aerolabs/aero-backend/internal/providers"
)

const (
	providerName = "openai"
	defaultModel = "gpt-4o-mini"
)

type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  openaiSDK.Client
}

type Option func(*Provider)

// WithModel overrides the default model name.
func WithModel(m string) Option {
	return func(p *Provider) { p.model = m }
}

// WithBaseURL overrides the API base URL (useful for testing with a mock).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey: apiKey,
		model:  defaultModel,
	}
	for _, o := range opts {
		o(p)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(p.apiKey),
		option.WithHTTPClient(&http.Client{Timeout: providers.ProviderTimeout}),
	}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = openaiSDK.NewClient(clientOpts...)

	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.apiKey == "" {
		return providers.ErrNoCredential
	}
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("openai: health check: %w", toProviderError(err))
	}
	return nil
}

func (p *Provider) Generate(ctx context.Context, req *providers.GenRequest) (*providers.GenResult, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openai: %w", providers.ErrNoCredential)
	}

	params := openaiSDK.ChatCompletionNewParams{
		Messages: []openaiSDK.ChatCompletionMessageParamUnion{
			openaiSDK.UserMessage(req.Prompt),
		},
		Model: p.model,
	}

	if req.Stream {
		return p.handleStreaming(ctx, params), nil
	}
	return p.handleResponse(ctx, params)
}

func (p *Provider) handleResponse(ctx context.Context, params openaiSDK.ChatCompletionNewParams) (*providers.GenResult, error) {
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, toProviderError(err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	raw, _ := json.Marshal(resp)

	return &providers.GenResult{
		Summary: content,
		Raw:     raw,
	}, nil
}

func (p *Provider) handleStreaming(ctx context.Context, params openaiSDK.ChatCompletionNewParams) *providers.GenResult {
	ch := make(chan providers.Update, 64)

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	go func() {
		defer close(ch)

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			c := chunk.Choices[0]
			if c.Delta.Content == "" {
				continue
			}
			select {
			case ch <- providers.Update{Text: c.Delta.Content}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case ch <- providers.Update{Text: fmt.Sprintf("[stream error] %v", err), Done: true}:
			case <-ctx.Done():
			}
			return
		}

		select {
		case ch <- providers.Update{Done: true}:
		case <-ctx.Done():
		}
	}()

	return &providers.GenResult{Stream: ch}
}

func toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &providers.Error{
			Provider:   providerName,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
		}
	}
	return err
}
