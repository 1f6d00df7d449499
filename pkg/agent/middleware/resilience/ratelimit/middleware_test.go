package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"forgeloop/pkg/agent/llm"
)

type countingClient struct{ calls int }

func (c *countingClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.calls++
	return llm.CompletionResponse{Content: "ok"}, nil
}

func (c *countingClient) GetModelName() string { return "test-model" }

type throttleRecorder struct {
	mu        sync.Mutex
	throttles int
	waits     int
}

func (r *throttleRecorder) ObserveRequest(_, _, _ string, _, _ int, _ time.Duration) {}

func (r *throttleRecorder) IncThrottle(_, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.throttles++
}

func (r *throttleRecorder) ObserveQueueWait(_ string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits++
}

func TestNewLimiterDisabled(t *testing.T) {
	if NewLimiter(0) != nil {
		t.Error("expected nil limiter for zero rate")
	}

	base := &countingClient{}
	client := llm.Chain(base, Middleware(nil, nil))
	if client != llm.LLMClient(base) {
		t.Error("expected nil limiter to leave the client unwrapped")
	}
}

func TestMiddlewareThrottlesSecondRequest(t *testing.T) {
	base := &countingClient{}
	rec := &throttleRecorder{}
	client := llm.Chain(base, Middleware(NewLimiter(600), rec))

	for i := 0; i < 2; i++ {
		if _, err := client.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	if base.calls != 2 {
		t.Errorf("expected 2 calls, got %d", base.calls)
	}
	if rec.throttles != 1 {
		t.Errorf("expected the second request to be throttled once, got %d", rec.throttles)
	}
	if rec.waits != 2 {
		t.Errorf("expected 2 queue wait observations, got %d", rec.waits)
	}
}

func TestMiddlewareWaitCancelled(t *testing.T) {
	base := &countingClient{}
	client := llm.Chain(base, Middleware(NewLimiter(1), nil))

	if _, err := client.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, llm.CompletionRequest{})
	if err == nil {
		t.Fatal("expected the second request to fail waiting on the limiter")
	}
	if base.calls != 1 {
		t.Errorf("expected the limited request not to reach the client, got %d calls", base.calls)
	}
}
