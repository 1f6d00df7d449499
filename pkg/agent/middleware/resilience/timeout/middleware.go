// Package timeout bounds each model-service request with a deadline.
package timeout

import (
	"context"
	"time"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/llmerrors"
)

// Middleware applies d to every request. A non-positive d disables the deadline.
func Middleware(d time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if d <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				reqCtx, cancel := context.WithTimeout(ctx, d)
				defer cancel()

				resp, err := next.Complete(reqCtx, req)
				// Our own deadline is transient; a caller's cancellation is passed through.
				if err != nil && reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
					return resp, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timed out after "+d.String())
				}
				return resp, err //nolint:wrapcheck // middleware passes errors through unchanged
			},
			next.GetModelName,
		)
	}
}
