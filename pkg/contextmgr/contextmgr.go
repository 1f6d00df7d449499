// Package contextmgr keeps the conversation log an agent threads into every model request.
//
// The log is append-only: messages are never rewritten or dropped. Tool results are buffered
// until the next user turn so every result of one assistant turn lands in a single message.
package contextmgr

import (
	"strings"
	"sync"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/utils"
)

// ContextManager owns one agent's conversation state.
type ContextManager struct {
	mu             sync.Mutex
	modelName      string
	counter        *utils.TokenCounter
	messages       []llm.CompletionMessage
	pendingResults []llm.ToolResult
	usage          llm.Usage
}

// NewContextManager creates an empty log.
func NewContextManager() *ContextManager {
	return &ContextManager{}
}

// NewContextManagerWithModel creates an empty log that estimates tokens with the model's encoding.
func NewContextManagerWithModel(modelName string, counter *utils.TokenCounter) *ContextManager {
	return &ContextManager{modelName: modelName, counter: counter}
}

// ModelName returns the model the log was created for.
func (cm *ContextManager) ModelName() string {
	return cm.modelName
}

// SetSystemPrompt places prompt as the leading system message, replacing a previous one.
func (cm *ContextManager) SetSystemPrompt(prompt string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	msg := llm.NewSystemMessage(strings.TrimSpace(prompt))
	if len(cm.messages) > 0 && cm.messages[0].Role == llm.RoleSystem {
		cm.messages[0] = msg
		return
	}
	cm.messages = append([]llm.CompletionMessage{msg}, cm.messages...)
}

// AddUserMessage appends a user turn. Buffered tool results are attached to it.
func (cm *ContextManager) AddUserMessage(content string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.messages = append(cm.messages, llm.CompletionMessage{
		Role:        llm.RoleUser,
		Content:     strings.TrimSpace(content),
		ToolResults: cm.takePendingLocked(),
	})
}

// AddAssistantMessage appends a model turn with its tool calls.
func (cm *ContextManager) AddAssistantMessage(content string, calls []llm.ToolCall) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.messages = append(cm.messages, llm.CompletionMessage{
		Role:      llm.RoleAssistant,
		Content:   content,
		ToolCalls: append([]llm.ToolCall(nil), calls...),
	})
}

// AddToolResult buffers the result of a tool call until the next user turn or flush.
func (cm *ContextManager) AddToolResult(callID, content string, isError bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.pendingResults = append(cm.pendingResults, llm.ToolResult{
		ToolCallID: callID,
		Content:    content,
		IsError:    isError,
	})
}

// FlushToolResults appends buffered tool results as a user turn of their own.
// It reports whether anything was flushed.
func (cm *ContextManager) FlushToolResults() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	results := cm.takePendingLocked()
	if len(results) == 0 {
		return false
	}
	cm.messages = append(cm.messages, llm.CompletionMessage{Role: llm.RoleUser, ToolResults: results})
	return true
}

// PendingResultCount returns the number of buffered tool results.
func (cm *ContextManager) PendingResultCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.pendingResults)
}

func (cm *ContextManager) takePendingLocked() []llm.ToolResult {
	if len(cm.pendingResults) == 0 {
		return nil
	}
	results := cm.pendingResults
	cm.pendingResults = nil
	return results
}

// Messages returns a copy of the log. Buffered tool results are not included.
func (cm *ContextManager) Messages() []llm.CompletionMessage {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	out := make([]llm.CompletionMessage, len(cm.messages))
	copy(out, cm.messages)
	return out
}

// MessageCount returns the number of logged messages.
func (cm *ContextManager) MessageCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.messages)
}

// LastAssistantCalls returns the tool calls of the most recent model turn.
func (cm *ContextManager) LastAssistantCalls() []llm.ToolCall {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for i := len(cm.messages) - 1; i >= 0; i-- {
		if cm.messages[i].Role == llm.RoleAssistant {
			return append([]llm.ToolCall(nil), cm.messages[i].ToolCalls...)
		}
	}
	return nil
}

// AddUsage accumulates the usage reported for one request.
func (cm *ContextManager) AddUsage(u llm.Usage) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.usage.InputTokens += u.InputTokens
	cm.usage.OutputTokens += u.OutputTokens
}

// Usage returns the usage accumulated over the conversation.
func (cm *ContextManager) Usage() llm.Usage {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.usage
}

// CountTokens estimates the tokens of the logged conversation. Without a counter the estimate
// is four characters per token.
func (cm *ContextManager) CountTokens() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	total := 0
	for i := range cm.messages {
		m := &cm.messages[i]
		total += cm.counter.CountTokens(m.Content)
		for _, tc := range m.ToolCalls {
			total += cm.counter.CountTokens(tc.Name) + cm.counter.CountTokens(deferred.EncodeArgs(tc.Args))
		}
		for _, tr := range m.ToolResults {
			total += cm.counter.CountTokens(tr.Content)
		}
	}
	return total
}
