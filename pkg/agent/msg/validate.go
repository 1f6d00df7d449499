// Package msg validates and normalizes conversation messages before they are sent to a provider.
package msg

import (
	"fmt"
	"strings"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/logx"
)

// MessageValidationError describes an invalid message.
type MessageValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e MessageValidationError) Error() string {
	return fmt.Sprintf("message validation error - %s: '%s' (%s)", e.Field, e.Value, e.Reason)
}

// ValidateMessages checks roles and that every message carries something.
func ValidateMessages(messages []llm.CompletionMessage) error {
	if len(messages) == 0 {
		return MessageValidationError{Field: "messages", Value: "[]", Reason: "at least one message is required"}
	}
	for i := range messages {
		if err := ValidateMessage(&messages[i]); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// ValidateMessage checks a single message.
func ValidateMessage(m *llm.CompletionMessage) error {
	switch m.Role {
	case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
	default:
		return MessageValidationError{Field: "role", Value: string(m.Role), Reason: "role must be one of: user, assistant, system"}
	}

	if strings.TrimSpace(m.Content) == "" && len(m.ToolCalls) == 0 && len(m.ToolResults) == 0 {
		return MessageValidationError{Field: "content", Value: m.Content, Reason: "message has no content, tool calls or tool results"}
	}
	if m.Role != llm.RoleAssistant && len(m.ToolCalls) > 0 {
		return MessageValidationError{Field: "tool_calls", Value: string(m.Role), Reason: "only assistant messages carry tool calls"}
	}
	if m.Role != llm.RoleUser && len(m.ToolResults) > 0 {
		return MessageValidationError{Field: "tool_results", Value: string(m.Role), Reason: "only user messages carry tool results"}
	}
	return nil
}

// SplitSystem separates system messages, joined with blank lines, from the rest.
func SplitSystem(messages []llm.CompletionMessage) (string, []llm.CompletionMessage) {
	var system []string
	rest := make([]llm.CompletionMessage, 0, len(messages))
	for i := range messages {
		if messages[i].Role == llm.RoleSystem {
			system = append(system, messages[i].Content)
			continue
		}
		rest = append(rest, messages[i])
	}
	return strings.Join(system, "\n\n"), rest
}

// MergeConsecutive folds adjacent messages of the same role into one, for providers that require
// strict user/assistant alternation.
func MergeConsecutive(messages []llm.CompletionMessage) []llm.CompletionMessage {
	merged := make([]llm.CompletionMessage, 0, len(messages))
	for i := range messages {
		m := messages[i]
		if n := len(merged); n > 0 && merged[n-1].Role == m.Role {
			last := &merged[n-1]
			switch {
			case last.Content == "":
				last.Content = m.Content
			case m.Content != "":
				last.Content += "\n\n" + m.Content
			}
			last.ToolCalls = append(last.ToolCalls, m.ToolCalls...)
			last.ToolResults = append(last.ToolResults, m.ToolResults...)
			continue
		}
		m.ToolCalls = append([]llm.ToolCall(nil), m.ToolCalls...)
		m.ToolResults = append([]llm.ToolResult(nil), m.ToolResults...)
		merged = append(merged, m)
	}
	return merged
}

// PrepareAlternating splits out the system prompt and merges the rest into alternating turns
// that start and end with the user.
func PrepareAlternating(messages []llm.CompletionMessage) (string, []llm.CompletionMessage, error) {
	if err := ValidateMessages(messages); err != nil {
		return "", nil, err
	}
	system, rest := SplitSystem(messages)
	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	merged := MergeConsecutive(rest)
	if merged[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", merged[0].Role)
	}
	if last := merged[len(merged)-1]; last.Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", last.Role)
	}
	return system, merged, nil
}

// ToolArgs returns a tool call's arguments as a map for providers that resend them structured.
// Undecodable arguments are replaced with an empty map.
func ToolArgs(tc llm.ToolCall) map[string]any {
	args, err := tc.Arguments()
	if err != nil {
		logx.Warnf("tool call %s (%s) has undecodable arguments, sending empty object: %v", tc.ID, tc.Name, err)
		return map[string]any{}
	}
	if args == nil {
		return map[string]any{}
	}
	return args
}

// ToolArgsJSON returns a tool call's arguments as a JSON string for providers that resend them encoded.
func ToolArgsJSON(tc llm.ToolCall) string {
	if tc.Args == nil {
		return "{}"
	}
	if encoded := deferred.EncodeArgs(tc.Args); encoded != "" {
		return encoded
	}
	return "{}"
}
