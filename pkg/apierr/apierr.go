// Package apierr provides the structured error envelope returned for
// malformed caller input. Provider-side failures never use this path — the
// gateway degrades those into ok=true envelopes instead.
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// ErrorType constants.
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeRateLimitError = "rate_limit_error"
	TypeServerError    = "server_error"
)

// Code constants.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeMissingField      = "missing_field"
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeInternalError     = "internal_error"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		OK    bool     `json:"ok"`
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{OK: false, Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteBadRequest writes a 400 invalid-request error.
func WriteBadRequest(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusBadRequest, message, TypeInvalidRequest, CodeInvalidRequest)
}

// WriteMissingField writes a 400 error naming the missing required field.
func WriteMissingField(ctx *fasthttp.RequestCtx, field string) {
	Write(ctx, fasthttp.StatusBadRequest,
		"field '"+field+"' is required", TypeInvalidRequest, CodeMissingField)
}

// WriteRateLimit writes a 429 rate limit error for the inbound RPM guard.
func WriteRateLimit(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Retry-After", "60")
	Write(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded", TypeRateLimitError, CodeRateLimitExceeded)
}
