// Package ratelimit paces model-service requests per client.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/middleware/metrics"
)

// NewLimiter creates a limiter allowing requestsPerMinute requests, with a burst of one.
// A non-positive rate disables limiting and returns nil.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

// Middleware waits on limiter before every request. A nil limiter passes requests straight through.
func Middleware(limiter *rate.Limiter, recorder metrics.Recorder) llm.Middleware {
	if recorder == nil {
		recorder = metrics.Nop()
	}

	return func(next llm.LLMClient) llm.LLMClient {
		if limiter == nil {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				model := next.GetModelName()
				start := time.Now()

				if !limiter.Allow() {
					recorder.IncThrottle(model, "rate_limit")
					if err := limiter.Wait(ctx); err != nil {
						return llm.CompletionResponse{}, fmt.Errorf("rate limit wait for %s: %w", model, err)
					}
				}
				recorder.ObserveQueueWait(model, time.Since(start))

				return next.Complete(ctx, req) //nolint:wrapcheck // middleware passes errors through unchanged
			},
			next.GetModelName,
		)
	}
}
