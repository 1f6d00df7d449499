// Package validation rejects unusable model responses.
package validation

import (
	"context"
	"strings"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/llmerrors"
)

// EmptyResponseMiddleware turns a response with neither text nor tool calls into
// ErrorTypeEmptyResponse so the retry layer can try again.
func EmptyResponseMiddleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err //nolint:wrapcheck // middleware passes errors through unchanged
				}
				if len(resp.ToolCalls) == 0 && strings.TrimSpace(resp.Content) == "" {
					return resp, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
						"model returned no content and no tool calls (stop reason: "+resp.StopReason+")")
				}
				return resp, nil
			},
			next.GetModelName,
		)
	}
}
