package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aerolabs/aero-backend/internal/providers"
)

// funcProvider delegates Generate to a closure. Used across gateway tests.
type funcProvider struct {
	name  string
	genFn func(ctx context.Context, req *providers.GenRequest) (*providers.GenResult, error)
}

func (p *funcProvider) Name() string { return p.name }

func (p *funcProvider) Generate(ctx context.Context, req *providers.GenRequest) (*providers.GenResult, error) {
	return p.genFn(ctx, req)
}

func (p *funcProvider) HealthCheck(context.Context) error { return nil }

func rateLimitErr(name string) error {
	return &providers.Error{Provider: name, StatusCode: 429, Message: "quota exceeded"}
}

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: 10 * time.Millisecond, Jitter: 0}
}

func TestRetryGenerate_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	prov := &funcProvider{name: "gemini", genFn: func(_ context.Context, _ *providers.GenRequest) (*providers.GenResult, error) {
		calls++
		return &providers.GenResult{Summary: "ok"}, nil
	}}

	res, err := retryGenerate(context.Background(), prov, &providers.GenRequest{Prompt: "hi"}, testPolicy(3), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary != "ok" {
		t.Errorf("got summary %q", res.Summary)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryGenerate_RateLimitedThenSuccess(t *testing.T) {
	calls := 0
	sleeps := 0
	prov := &funcProvider{name: "gemini", genFn: func(_ context.Context, _ *providers.GenRequest) (*providers.GenResult, error) {
		calls++
		if calls <= 2 {
			return nil, rateLimitErr("gemini")
		}
		return &providers.GenResult{Summary: "Gradient descent iteratively minimizes loss."}, nil
	}}

	start := time.Now()
	res, err := retryGenerate(context.Background(), prov, &providers.GenRequest{Prompt: "Explain gradient descent"},
		testPolicy(4), func(int, time.Duration) { sleeps++ })
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary != "Gradient descent iteratively minimizes loss." {
		t.Errorf("got summary %q", res.Summary)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if sleeps != 2 {
		t.Errorf("expected 2 backoff sleeps, got %d", sleeps)
	}
	// Schedule is 10ms then 20ms.
	if elapsed < 30*time.Millisecond {
		t.Errorf("elapsed %v, want ≥ 30ms (backoff must actually sleep)", elapsed)
	}
}

func TestRetryGenerate_Exhaustion(t *testing.T) {
	calls := 0
	prov := &funcProvider{name: "gemini", genFn: func(_ context.Context, _ *providers.GenRequest) (*providers.GenResult, error) {
		calls++
		return nil, rateLimitErr("gemini")
	}}

	_, err := retryGenerate(context.Background(), prov, &providers.GenRequest{Prompt: "hi"}, testPolicy(3), nil)
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if !isExhausted(err) {
		t.Errorf("expected exhaustion error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly MaxAttempts=3 calls, got %d", calls)
	}
	// The terminal rate-limit error stays reachable for classification.
	if !providers.IsRateLimited(errors.Unwrap(err)) {
		t.Error("exhaustion should wrap the last rate-limit error")
	}
}

func TestRetryGenerate_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	hard := &providers.Error{Provider: "gemini", StatusCode: 500, Message: "boom"}
	prov := &funcProvider{name: "gemini", genFn: func(_ context.Context, _ *providers.GenRequest) (*providers.GenResult, error) {
		calls++
		return nil, hard
	}}

	start := time.Now()
	_, err := retryGenerate(context.Background(), prov, &providers.GenRequest{Prompt: "hi"}, testPolicy(4), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if isExhausted(err) {
		t.Error("a 500 must not be classified as retry exhaustion")
	}
	if calls != 1 {
		t.Errorf("non-retryable error should not be retried, got %d calls", calls)
	}
	if time.Since(start) > 5*time.Millisecond {
		t.Error("non-retryable failure should return without sleeping")
	}
}

func TestRetryGenerate_ContextCancelDuringBackoff(t *testing.T) {
	prov := &funcProvider{name: "gemini", genFn: func(_ context.Context, _ *providers.GenRequest) (*providers.GenResult, error) {
		return nil, rateLimitErr("gemini")
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Jitter: 0}
	_, err := retryGenerate(ctx, prov, &providers.GenRequest{Prompt: "hi"}, policy, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline error, got %v", err)
	}
}

func TestRetryPolicy_DelayDoubles(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, Jitter: 0}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for n, w := range want {
		if got := p.delay(n); got != w {
			t.Errorf("delay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestRetryPolicy_JitterBounds(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, BaseDelay: 100 * time.Millisecond, Jitter: 50 * time.Millisecond}
	for i := 0; i < 100; i++ {
		d := p.delay(0)
		if d < 100*time.Millisecond || d >= 150*time.Millisecond {
			t.Fatalf("delay(0) = %v, want [100ms, 150ms)", d)
		}
	}
}
