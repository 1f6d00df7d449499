// Package ollama implements llm.LLMClient on a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/llmerrors"
	"forgeloop/pkg/agent/msg"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/tools"
)

// DefaultHost is used when no base URL is configured.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client.
type Client struct {
	client *api.Client
	model  string
	host   string
}

// NewOllamaClient creates a client for cfg.ModelName. An unparsable BaseURL falls back to DefaultHost.
func NewOllamaClient(cfg llm.Config) *Client {
	host := cfg.BaseURL
	if host == "" {
		host = DefaultHost
	}
	parsed, err := url.Parse(host)
	if err != nil || parsed.Host == "" {
		host = DefaultHost
		parsed, _ = url.Parse(DefaultHost)
	}
	return &Client{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  cfg.ModelName,
		host:   host,
	}
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	req, err := buildRequest(o.model, in)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion failed")
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	return convertResponse(&response)
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// Host returns the server URL in use.
func (o *Client) Host() string {
	return o.host
}

//nolint:gocritic // CompletionRequest passed by value to match the interface
func buildRequest(model string, in llm.CompletionRequest) (*api.ChatRequest, error) {
	if err := msg.ValidateMessages(in.Messages); err != nil {
		return nil, err
	}

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: convertMessages(in.Messages),
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
		},
	}
	if in.MaxTokens > 0 {
		req.Options["num_predict"] = in.MaxTokens
	}
	if len(in.Tools) > 0 {
		converted, err := convertTools(in.Tools)
		if err != nil {
			return nil, err
		}
		req.Tools = converted
	}
	return req, nil
}

// convertMessages sends each tool result as its own "tool" message ahead of the user text.
func convertMessages(messages []llm.CompletionMessage) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for i := range messages {
		m := &messages[i]

		for j := range m.ToolResults {
			tr := &m.ToolResults[j]
			out = append(out, api.Message{Role: "tool", Content: tr.Content, ToolCallID: tr.ToolCallID})
		}
		if len(m.ToolResults) > 0 && m.Content == "" {
			continue
		}

		converted := api.Message{Role: string(m.Role), Content: m.Content}
		for j := range m.ToolCalls {
			tc := m.ToolCalls[j]
			args := api.NewToolCallFunctionArguments()
			for k, v := range msg.ToolArgs(tc) {
				args.Set(k, v)
			}
			converted.ToolCalls = append(converted.ToolCalls, api.ToolCall{
				ID:       tc.ID,
				Function: api.ToolCallFunction{Name: tc.Name, Arguments: args},
			})
		}
		out = append(out, converted)
	}
	return out
}

// convertTools goes through the JSON schema form so nested items and enums survive intact.
func convertTools(defs []tools.ToolDefinition) (api.Tools, error) {
	out := make(api.Tools, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		raw, err := json.Marshal(def.InputSchema.Map())
		if err != nil {
			return nil, fmt.Errorf("encode schema for %s: %w", def.Name, err)
		}
		var params api.ToolFunctionParameters
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("convert schema for %s: %w", def.Name, err)
		}
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return out, nil
}

// convertResponse re-encodes tool arguments as JSON; calls without an ID get a positional one.
func convertResponse(resp *api.ChatResponse) (llm.CompletionResponse, error) {
	out := llm.CompletionResponse{
		Content:    resp.Message.Content,
		StopReason: stopReason(resp),
		Usage: llm.Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
		},
	}
	for i := range resp.Message.ToolCalls {
		call := &resp.Message.ToolCalls[i]
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		raw, err := json.Marshal(call.Function.Arguments)
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "encode tool arguments")
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   id,
			Name: call.Function.Name,
			Args: deferred.EncodedArgs(raw),
		})
	}
	if len(out.ToolCalls) > 0 && out.StopReason == llm.StopReasonEndTurn {
		out.StopReason = llm.StopReasonToolUse
	}
	return out, nil
}

func stopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return llm.StopReasonEndTurn
	case "length":
		return llm.StopReasonMaxTokens
	default:
		return resp.DoneReason
	}
}

func classifyError(err error) error {
	status := 0
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		status = statusErr.StatusCode
	}
	return fmt.Errorf("ollama request failed: %w", llmerrors.Classify(err, status))
}
