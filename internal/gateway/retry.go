package gateway

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/aerolabs/aero-backend/internal/providers"
)

// ApologyText is the fixed body returned when every provider attempt is
// rate-limited. The response still reports success so the frontend renders
// it like any other result.
const ApologyText = "I'm sorry, the AI service is currently experiencing high demand. Please try again in a moment."

// DegradedRateLimited is the degraded_reason value for retry exhaustion.
const DegradedRateLimited = "rate_limited"

// RetryPolicy bounds the retry loop around a single provider call.
// Only rate-limit errors are retried; everything else fails the attempt
// immediately.
type RetryPolicy struct {
	// MaxAttempts is the total number of provider calls, including the
	// first. Must be ≥ 1.
	MaxAttempts int

	// BaseDelay is the sleep before the first retry; it doubles after
	// every rate-limited attempt.
	BaseDelay time.Duration

	// Jitter adds a uniform random [0, Jitter) to each sleep so synchronized
	// clients do not retry in lockstep.
	Jitter time.Duration
}

// DefaultRetryPolicy matches the upstream quota windows we see in practice:
// 1s, 2s, 4s spacing absorbs per-minute limits without stalling the caller
// for more than ~7s total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		Jitter:      250 * time.Millisecond,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// delay returns the backoff before retry n (0-based): BaseDelay·2^n plus
// random jitter.
func (p RetryPolicy) delay(n int) time.Duration {
	d := p.BaseDelay << uint(n)
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}

// errExhausted marks retry exhaustion so the caller can distinguish it from
// a hard provider failure.
type errExhausted struct {
	attempts int
	last     error
}

func (e *errExhausted) Error() string {
	return "all attempts rate-limited"
}

func (e *errExhausted) Unwrap() error { return e.last }

// retryGenerate calls prov.Generate under the policy. Rate-limited attempts
// sleep and retry; any other error, or context cancellation, returns
// immediately. onSleep fires before each backoff sleep (metrics hook; may be
// nil).
func retryGenerate(
	ctx context.Context,
	prov providers.Provider,
	req *providers.GenRequest,
	policy RetryPolicy,
	onSleep func(attempt int, d time.Duration),
) (*providers.GenResult, error) {
	policy = policy.normalized()

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			d := policy.delay(attempt - 1)
			if onSleep != nil {
				onSleep(attempt, d)
			}
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		res, err := prov.Generate(ctx, req)
		if err == nil {
			return res, nil
		}
		if !providers.IsRateLimited(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, &errExhausted{attempts: policy.MaxAttempts, last: lastErr}
}

// isExhausted reports whether err is a retry-exhaustion failure.
func isExhausted(err error) bool {
	var e *errExhausted
	return errors.As(err, &e)
}
