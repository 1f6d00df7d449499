// Package logging logs model-service traffic at debug level.
package logging

import (
	"context"
	"strings"
	"time"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/llmerrors"
	"forgeloop/pkg/logx"
)

const promptPreviewChars = 400

// Middleware logs each request's size and each response's tool calls.
func Middleware(logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("llm")
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if logx.IsDebugEnabledForDomain("llm") && len(req.Messages) > 0 {
					last := req.Messages[len(req.Messages)-1]
					logx.Debug(ctx, "llm", "%s request: %d messages, %d tools, last %s: %s",
						next.GetModelName(), len(req.Messages), len(req.Tools), last.Role,
						llmerrors.SanitizePrompt(last.Content, promptPreviewChars))
				}

				start := time.Now()
				resp, err := next.Complete(ctx, req)
				if err != nil {
					logger.Error("%s request failed after %s: %v", next.GetModelName(), time.Since(start).Round(time.Millisecond), err)
					return resp, err //nolint:wrapcheck // middleware passes errors through unchanged
				}

				names := make([]string, 0, len(resp.ToolCalls))
				for _, tc := range resp.ToolCalls {
					names = append(names, tc.Name)
				}
				logx.Debug(ctx, "llm", "%s response in %s: stop=%s tools=[%s] tokens=%d/%d",
					next.GetModelName(), time.Since(start).Round(time.Millisecond), resp.StopReason,
					strings.Join(names, ","), resp.Usage.InputTokens, resp.Usage.OutputTokens)
				return resp, nil
			},
			next.GetModelName,
		)
	}
}
