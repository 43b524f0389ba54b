// Package providers defines the common interfaces and types used by all
// text-generation provider implementations (Gemini, OpenAI, Anthropic, and
// the search-answering provider).
//
// Each provider lives in its own sub-package and implements the Provider
// interface. The gateway treats providers as interchangeable strategies:
// it builds a GenRequest, the provider issues the network call, and the
// heterogeneous upstream response is normalized into a GenResult.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type (
	// Update is a single incremental result delivered during a streaming
	// generation. Text carries the delta; Done marks the final update.
	Update struct {
		Text string
		Done bool
	}

	// GenRequest — normalized generation request.
	GenRequest struct {
		Prompt    string
		Stream    bool
		RequestID string
	}

	// GenResult — normalized provider response.
	//
	// Summary holds the extracted text for non-streaming calls. Raw keeps the
	// provider's native response body opaque for downstream consumers.
	// Stream is non-nil only for streaming calls; the channel is closed by
	// the producer after the final update.
	GenResult struct {
		Summary string
		Raw     []byte
		Stream  <-chan Update
	}
)

// Provider — text-generation provider strategy.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *GenRequest) (*GenResult, error)
	HealthCheck(ctx context.Context) error
}

// Default timeouts shared by all provider HTTP clients.
const ProviderTimeout = 60 * time.Second

// StatusCoder is implemented by provider errors that carry the upstream
// HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

// Error is the common provider error. An upstream status in the
// "too many requests" class is the sole trigger for retry.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (status=%d)", e.Provider, e.Message, e.StatusCode)
}

func (e *Error) HTTPStatus() int { return e.StatusCode }

// ErrNoCredential signals a missing or empty API key for the selected
// provider. Detected at call time, never at startup — the gateway degrades
// the response rather than failing the caller.
var ErrNoCredential = errors.New("no API key configured")

// IsRateLimited reports whether err is an upstream throttling signal
// (HTTP 429 class). Only these errors are retried.
func IsRateLimited(err error) bool {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus() == 429
	}
	return false
}

// IsConfiguration reports whether err is a missing-credential failure.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrNoCredential)
}
