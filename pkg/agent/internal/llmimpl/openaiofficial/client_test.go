package openaiofficial

import (
	"encoding/json"
	"testing"

	"github.com/openai/openai-go"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/tools"
)

func TestNewOfficialClient(t *testing.T) {
	client := NewOfficialClient(llm.Config{APIKey: "test-key", ModelName: "gpt-4o"})

	var _ llm.LLMClient = client
	if client.GetModelName() != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", client.GetModelName())
	}
}

func TestIsReasoningModel(t *testing.T) {
	tests := map[string]bool{"o3": true, "o4-mini": true, "gpt-5": true, "gpt-4o": false, "gpt-4.1": false}
	for model, want := range tests {
		if got := isReasoningModel(model); got != want {
			t.Errorf("isReasoningModel(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestBuildParamsMessages(t *testing.T) {
	req := llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage("system"),
			llm.NewUserMessage("build it"),
			{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: tools.ToolExecute, Args: deferred.StructuredArgs{"command": "ls"}},
					{ID: "call_2", Name: tools.ToolReadFile, Args: deferred.EncodedArgs(`{"filepath":"a"}`)},
				},
			},
			{
				Role: llm.RoleUser,
				ToolResults: []llm.ToolResult{
					{ToolCallID: "call_1", Content: "a"},
					{ToolCallID: "call_2", Content: "FILE_NOT_FOUND"},
				},
			},
		},
		Tools:             []tools.ToolDefinition{tools.NewDoneTool().Definition()},
		MaxTokens:         500,
		Temperature:       0.2,
		ParallelToolCalls: true,
	}

	params, err := buildParams("gpt-4o", req)
	if err != nil {
		t.Fatalf("buildParams failed: %v", err)
	}

	// system, user, assistant, tool, tool
	if len(params.Messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(params.Messages))
	}
	assistant := params.Messages[2].OfAssistant
	if assistant == nil || len(assistant.ToolCalls) != 2 {
		t.Fatalf("expected assistant with 2 tool calls, got %+v", params.Messages[2])
	}
	if assistant.ToolCalls[0].Function.Arguments != `{"command":"ls"}` {
		t.Errorf("unexpected structured args encoding %q", assistant.ToolCalls[0].Function.Arguments)
	}
	if assistant.ToolCalls[1].Function.Arguments != `{"filepath":"a"}` {
		t.Errorf("expected encoded args to pass through, got %q", assistant.ToolCalls[1].Function.Arguments)
	}
	if tool := params.Messages[4].OfTool; tool == nil || tool.ToolCallID != "call_2" {
		t.Errorf("expected tool message for call_2, got %+v", params.Messages[4])
	}

	if len(params.Tools) != 1 || params.Tools[0].Function.Name != tools.ToolDone {
		t.Errorf("unexpected tools %+v", params.Tools)
	}
	if !params.ParallelToolCalls.Valid() || !params.ParallelToolCalls.Value {
		t.Error("expected parallel tool calls to be enabled")
	}
	if !params.Temperature.Valid() {
		t.Error("expected temperature for a non-reasoning model")
	}
}

func TestBuildParamsOmitsTemperatureForReasoningModels(t *testing.T) {
	params, err := buildParams("o3", llm.CompletionRequest{Messages: []llm.CompletionMessage{llm.NewUserMessage("hi")}, Temperature: 0.3})
	if err != nil {
		t.Fatalf("buildParams failed: %v", err)
	}
	if params.Temperature.Valid() {
		t.Error("expected no temperature for o3")
	}
}

func TestConvertResponse(t *testing.T) {
	raw := `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-4o",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{"id": "call_9", "type": "function", "function": {"name": "done", "arguments": "{\"summary\":\"ok\"}"}}]
			}
		}],
		"usage": {"prompt_tokens": 50, "completion_tokens": 7, "total_tokens": 57}
	}`
	var completion openai.ChatCompletion
	if err := json.Unmarshal([]byte(raw), &completion); err != nil {
		t.Fatalf("failed to decode fixture: %v", err)
	}

	resp := convertResponse(&completion)
	if resp.StopReason != llm.StopReasonToolUse {
		t.Errorf("expected tool_use stop reason, got %q", resp.StopReason)
	}
	if resp.Usage.Total() != 57 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Args != deferred.Args(deferred.EncodedArgs(`{"summary":"ok"}`)) {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
}
