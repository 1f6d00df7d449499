// Package openaiofficial implements llm.LLMClient on the OpenAI Chat Completions API using the
// official Go package.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/llmerrors"
	"forgeloop/pkg/agent/msg"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/tools"
)

// OfficialClient wraps the official OpenAI client. Middleware is applied by the factory.
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClient creates a client for cfg.ModelName. BaseURL allows OpenAI-compatible servers.
func NewOfficialClient(cfg llm.Config) *OfficialClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OfficialClient{
		client: openai.NewClient(opts...),
		model:  cfg.ModelName,
	}
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	params, err := buildParams(o.model, in)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message preparation failed")
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI API")
	}
	return convertResponse(resp), nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

// isReasoningModel reports models that reject a temperature setting.
func isReasoningModel(model string) bool {
	name := strings.ToLower(model)
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

//nolint:gocritic // CompletionRequest passed by value to match the interface
func buildParams(model string, in llm.CompletionRequest) (openai.ChatCompletionNewParams, error) {
	if err := msg.ValidateMessages(in.Messages); err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: convertMessages(in.Messages),
	}
	if in.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(in.MaxTokens))
	}
	if !isReasoningModel(model) {
		params.Temperature = openai.Float(float64(in.Temperature))
	}

	if len(in.Tools) > 0 {
		params.Tools = convertTools(in.Tools)
		params.ParallelToolCalls = openai.Bool(in.ParallelToolCalls)
		choice := "auto"
		if in.ToolChoice == llm.ToolChoiceAny {
			choice = "required"
		}
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(choice)}
	}
	return params, nil
}

// convertMessages flattens tool results into one "tool" message each, placed before the user's
// text of the same turn.
func convertMessages(messages []llm.CompletionMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i := range messages {
		m := &messages[i]
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			assistant := &openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: msg.ToolArgsJSON(tc),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		default:
			for _, tr := range m.ToolResults {
				out = append(out, openai.ToolMessage(tr.Content, tr.ToolCallID))
			}
			if m.Content != "" {
				out = append(out, openai.UserMessage(m.Content))
			}
		}
	}
	return out
}

func convertTools(defs []tools.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.InputSchema.Map()),
			},
		})
	}
	return out
}

// convertResponse keeps function arguments as the JSON string the API returned.
func convertResponse(resp *openai.ChatCompletion) llm.CompletionResponse {
	choice := resp.Choices[0]
	out := llm.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: normalizeFinishReason(choice.FinishReason),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: deferred.EncodedArgs(tc.Function.Arguments),
		})
	}
	return out
}

func normalizeFinishReason(reason string) string {
	switch reason {
	case "stop":
		return llm.StopReasonEndTurn
	case "tool_calls", "function_call":
		return llm.StopReasonToolUse
	case "length":
		return llm.StopReasonMaxTokens
	default:
		return reason
	}
}

func classifyError(err error) error {
	var apiErr *openai.Error
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return fmt.Errorf("openai request failed: %w", llmerrors.Classify(err, status))
}
