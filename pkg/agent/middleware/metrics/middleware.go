package metrics

import (
	"context"
	"time"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/llmerrors"
	"forgeloop/pkg/utils"
)

// UsageExtractor reports the token usage of a completed request.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (inputTokens, outputTokens int)

// TokenCountingExtractor prefers provider-reported usage and falls back to counting with tc.
func TokenCountingExtractor(tc *utils.TokenCounter) UsageExtractor {
	return func(req llm.CompletionRequest, resp llm.CompletionResponse) (int, int) {
		if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
			return resp.Usage.InputTokens, resp.Usage.OutputTokens
		}
		input := 0
		for i := range req.Messages {
			input += tc.CountTokens(req.Messages[i].Content)
			for _, r := range req.Messages[i].ToolResults {
				input += tc.CountTokens(r.Content)
			}
		}
		return input, tc.CountTokens(resp.Content)
	}
}

// Middleware records latency, token usage and outcome of every request.
func Middleware(recorder Recorder, extract UsageExtractor) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if extract == nil {
		extract = TokenCountingExtractor(nil)
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				status, errorType := StatusSuccess, ""
				var input, output int
				if err != nil {
					status = StatusError
					errorType = llmerrors.TypeOf(err).String()
				} else {
					input, output = extract(req, resp)
				}

				recorder.ObserveRequest(next.GetModelName(), status, errorType, input, output, duration)
				return resp, err //nolint:wrapcheck // middleware passes errors through unchanged
			},
			next.GetModelName,
		)
	}
}
