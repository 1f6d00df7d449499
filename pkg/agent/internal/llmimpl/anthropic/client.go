// Package anthropic implements llm.LLMClient on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/llmerrors"
	"forgeloop/pkg/agent/msg"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/tools"
)

// ClaudeClient wraps the Anthropic API client. Middleware is applied by the factory.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a client for model. The SDK's own retries are disabled; the retry
// middleware owns backoff.
func NewClaudeClient(cfg llm.Config) *ClaudeClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(cfg.ModelName),
	}
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	params, err := buildParams(c.model, in)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message preparation failed")
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty response from Claude API")
	}
	return convertResponse(resp), nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

//nolint:gocritic // CompletionRequest passed by value to match the interface
func buildParams(model anthropic.Model, in llm.CompletionRequest) (anthropic.MessageNewParams, error) {
	system, messages, err := msg.PrepareAlternating(in.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       model,
		Messages:    convertMessages(messages),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if len(in.Tools) > 0 {
		params.Tools = convertTools(in.Tools)
		disableParallel := anthropic.Bool(!in.ParallelToolCalls)
		if in.ToolChoice == llm.ToolChoiceAny {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfAny: &anthropic.ToolChoiceAnyParam{DisableParallelToolUse: disableParallel},
			}
		} else {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfAuto: &anthropic.ToolChoiceAutoParam{DisableParallelToolUse: disableParallel},
			}
		}
	}
	return params, nil
}

// convertMessages maps alternating messages onto content blocks. Tool results lead a user turn,
// as the API requires.
func convertMessages(messages []llm.CompletionMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for i := range messages {
		m := &messages[i]
		var blocks []anthropic.ContentBlockParamUnion

		if m.Role == llm.RoleAssistant {
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, msg.ToolArgs(tc), tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
			continue
		}

		for _, tr := range m.ToolResults {
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		out = append(out, anthropic.NewUserMessage(blocks...))
	}
	return out
}

func convertTools(defs []tools.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.InputSchema.PropertiesMap(),
					Required:   def.InputSchema.Required,
				},
			},
		})
	}
	return out
}

// convertResponse keeps tool input as the raw JSON the API returned.
func convertResponse(resp *anthropic.Message) llm.CompletionResponse {
	out := llm.CompletionResponse{
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}

	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			use := block.AsToolUse()
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:   use.ID,
				Name: use.Name,
				Args: deferred.EncodedArgs(string(use.Input)),
			})
		}
	}
	return out
}

func classifyError(err error) error {
	var apiErr *anthropic.Error
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	classified := llmerrors.Classify(err, status)
	return fmt.Errorf("claude request failed: %w", classified)
}
