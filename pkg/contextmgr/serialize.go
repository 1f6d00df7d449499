package contextmgr

import (
	"encoding/json"
	"fmt"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/deferred"
)

// SerializedMessage is the JSON form of one logged message.
type SerializedMessage struct {
	Role        string             `json:"role"`
	Content     string             `json:"content,omitempty"`
	ToolCalls   []SerializedCall   `json:"tool_calls,omitempty"`
	ToolResults []SerializedResult `json:"tool_results,omitempty"`
}

// SerializedCall keeps arguments as JSON text so either payload form survives the round trip.
type SerializedCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// SerializedResult is the JSON form of a tool result.
type SerializedResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// SerializedUsage is the JSON form of accumulated usage.
type SerializedUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// SerializedContext is the full conversation state.
type SerializedContext struct {
	ModelName      string              `json:"model_name,omitempty"`
	Messages       []SerializedMessage `json:"messages"`
	PendingResults []SerializedResult  `json:"pending_results,omitempty"`
	Usage          SerializedUsage     `json:"usage"`
}

// Serialize converts the conversation state to JSON.
func (cm *ContextManager) Serialize() ([]byte, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	sc := SerializedContext{
		ModelName: cm.modelName,
		Messages:  make([]SerializedMessage, len(cm.messages)),
		Usage:     SerializedUsage{InputTokens: cm.usage.InputTokens, OutputTokens: cm.usage.OutputTokens},
	}
	for i := range cm.messages {
		sc.Messages[i] = messageToSerialized(&cm.messages[i])
	}
	for _, tr := range cm.pendingResults {
		sc.PendingResults = append(sc.PendingResults, SerializedResult(tr))
	}

	data, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}
	return data, nil
}

// Deserialize replaces the conversation state with data. The token counter is kept.
func (cm *ContextManager) Deserialize(data []byte) error {
	var sc SerializedContext
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("failed to unmarshal context: %w", err)
	}

	messages := make([]llm.CompletionMessage, len(sc.Messages))
	for i := range sc.Messages {
		messages[i] = serializedToMessage(&sc.Messages[i])
	}
	var pending []llm.ToolResult
	for _, sr := range sc.PendingResults {
		pending = append(pending, llm.ToolResult(sr))
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.modelName = sc.ModelName
	cm.messages = messages
	cm.pendingResults = pending
	cm.usage = llm.Usage{InputTokens: sc.Usage.InputTokens, OutputTokens: sc.Usage.OutputTokens}
	return nil
}

func messageToSerialized(m *llm.CompletionMessage) SerializedMessage {
	sm := SerializedMessage{Role: string(m.Role), Content: m.Content}
	for _, tc := range m.ToolCalls {
		args := json.RawMessage(deferred.EncodeArgs(tc.Args))
		if !json.Valid(args) {
			// Keep undecodable payloads verbatim as a JSON string.
			args, _ = json.Marshal(deferred.EncodeArgs(tc.Args))
		}
		sm.ToolCalls = append(sm.ToolCalls, SerializedCall{ID: tc.ID, Name: tc.Name, Arguments: args})
	}
	for _, tr := range m.ToolResults {
		sm.ToolResults = append(sm.ToolResults, SerializedResult(tr))
	}
	return sm
}

func serializedToMessage(sm *SerializedMessage) llm.CompletionMessage {
	m := llm.CompletionMessage{Role: llm.CompletionRole(sm.Role), Content: sm.Content}
	for _, sc := range sm.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, llm.ToolCall{
			ID:   sc.ID,
			Name: sc.Name,
			Args: deferred.EncodedArgs(sc.Arguments),
		})
	}
	for _, sr := range sm.ToolResults {
		m.ToolResults = append(m.ToolResults, llm.ToolResult(sr))
	}
	return m
}
