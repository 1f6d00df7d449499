package agent

import (
	"context"
	"fmt"
	"sync"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/deferred"
)

// MockLLMClient replays predefined responses. Used by tests across packages.
type MockLLMClient struct {
	mu            sync.Mutex
	model         string
	responses     []llm.CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	requests      []llm.CompletionRequest
}

// NewMockLLMClient creates a new mock client with predefined responses. A non-nil entry in errs
// is returned instead of the next response.
func NewMockLLMClient(responses []llm.CompletionResponse, errs []error) *MockLLMClient {
	return &MockLLMClient{
		model:     "mock-model",
		responses: responses,
		errors:    errs,
	}
}

// WithModel sets the name reported by GetModelName.
func (m *MockLLMClient) WithModel(model string) *MockLLMClient {
	m.model = model
	return m
}

// Complete returns the next predefined response or error.
func (m *MockLLMClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.errorIndex < len(m.errors) {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		if err != nil {
			return llm.CompletionResponse{}, err
		}
	}

	if m.responseIndex >= len(m.responses) {
		return llm.CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// GetModelName returns the mock's model name.
func (m *MockLLMClient) GetModelName() string {
	return m.model
}

// Requests returns every request seen so far.
func (m *MockLLMClient) Requests() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.CompletionRequest(nil), m.requests...)
}

// ToolTurn builds a response that calls the given tools.
func ToolTurn(calls ...llm.ToolCall) llm.CompletionResponse {
	return llm.CompletionResponse{
		ToolCalls:  calls,
		StopReason: llm.StopReasonToolUse,
		Usage:      llm.Usage{InputTokens: 100, OutputTokens: 20},
	}
}

// Call builds a tool call with a JSON-encoded payload.
func Call(id, name, argsJSON string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Args: deferred.EncodedArgs(argsJSON)}
}
