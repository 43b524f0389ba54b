// Package anthropic implements providers.Provider on top of the official
// Anthropic Go SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aerolabs/aero-backend/internal/providers"
)

const (
	providerName     = "anthropic"
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 4096
)

type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  anthropicSDK.Client
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
	p.client = anthropicSDK.NewClient(clientOpts...)

	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.apiKey == "" {
		return providers.ErrNoCredential
	}
	_, err := p.client.Models.List(ctx, anthropicSDK.ModelListParams{
		Limit: anthropicSDK.Int(1),
	})
	if err != nil {
		return fmt.Errorf("anthropic: health check: %w", toProviderError(err))
	}
	return nil
}

func (p *Provider) Generate(ctx context.Context, req *providers.GenRequest) (*providers.GenResult, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", providers.ErrNoCredential)
	}

	params := anthropicSDK.MessageNewParams{
		Model:     anthropicSDK.Model(p.model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropicSDK.MessageParam{
			anthropicSDK.NewUserMessage(anthropicSDK.NewTextBlock(req.Prompt)),
		},
	}

	if req.Stream {
		return p.handleStreaming(ctx, params), nil
	}
	return p.handleResponse(ctx, params)
}

func (p *Provider) handleResponse(ctx context.Context, params anthropicSDK.MessageNewParams) (*providers.GenResult, error) {
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, toProviderError(err)
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		switch v := b.AsAny().(type) {
		case anthropicSDK.TextBlock:
			sb.WriteString(v.Text)
		case *anthropicSDK.TextBlock:
			sb.WriteString(v.Text)
		}
	}

	raw, _ := json.Marshal(msg)

	return &providers.GenResult{
		Summary: sb.String(),
		Raw:     raw,
	}, nil
}

func (p *Provider) handleStreaming(ctx context.Context, params anthropicSDK.MessageNewParams) *providers.GenResult {
	ch := make(chan providers.Update, 64)

	stream := p.client.Messages.NewStreaming(ctx, params)

	go func() {
		defer close(ch)

		for stream.Next() {
			ev := stream.Current()

			switch eventVariant := ev.AsAny().(type) {
			case anthropicSDK.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropicSDK.TextDelta:
					if deltaVariant.Text != "" {
						select {
						case ch <- providers.Update{Text: deltaVariant.Text}:
						case <-ctx.Done():
							return
						}
					}
				}
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
	var apierr *anthropicSDK.Error
	if errors.As(err, &apierr) {
		return &providers.Error{
			Provider:   providerName,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
		}
	}
	return err
}
