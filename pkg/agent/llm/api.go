// Package llm defines the provider-neutral model-service interface and message types.
package llm

import (
	"context"
	"fmt"

	"forgeloop/pkg/deferred"
	"forgeloop/pkg/tools"
)

// CompletionRole is the author of a message.
type CompletionRole string

const (
	// RoleSystem carries instructions.
	RoleSystem CompletionRole = "system"
	// RoleUser carries human text and tool results.
	RoleUser CompletionRole = "user"
	// RoleAssistant carries model text and tool calls.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens bounds a single response.
	DefaultMaxTokens = 8192

	// TemperatureDefault suits planning conversations.
	TemperatureDefault = 0.3

	// TemperatureDeterministic suits code generation.
	TemperatureDeterministic = 0.2
)

// Tool choice values.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceAny  = "any"
)

// Stop reasons normalized across providers.
const (
	StopReasonEndTurn   = "end_turn"
	StopReasonToolUse   = "tool_use"
	StopReasonMaxTokens = "max_tokens"
)

// ToolCall is one tool invocation requested by the model. Args keeps the provider's wire form
// (structured map or JSON string) until it is decoded.
type ToolCall struct {
	ID   string
	Name string
	Args deferred.Args
}

// Arguments decodes the call's arguments.
func (tc ToolCall) Arguments() (map[string]any, error) {
	return deferred.DecodeArgs(tc.Args)
}

// ToolResult is the outcome of a tool call, sent back on the next turn.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// CompletionMessage is one entry of the conversation.
type CompletionMessage struct {
	Role        CompletionRole
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Usage reports token consumption of one request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// CompletionRequest is one model invocation.
//
//nolint:govet // fieldalignment: value semantics preferred
type CompletionRequest struct {
	Messages          []CompletionMessage
	Tools             []tools.ToolDefinition
	ToolChoice        string
	MaxTokens         int
	Temperature       float32
	ParallelToolCalls bool
}

// CompletionResponse is the model's reply.
//
//nolint:govet // fieldalignment: value semantics preferred
type CompletionResponse struct {
	ToolCalls  []ToolCall
	Content    string
	StopReason string
	Usage      Usage
}

// LLMClient is the model service.
type LLMClient interface { //nolint:revive // established name
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model name for this client.
	GetModelName() string
}

// NewCompletionRequest creates a request with default limits.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// Config is the client-level configuration shared by providers.
type Config struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// Validate checks the configuration. Providers that run locally do not need an API key.
func (c *Config) Validate(requireKey bool) error {
	if requireKey && c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative")
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}
