package ollama

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/llmerrors"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/tools"
)

func TestNewOllamaClient(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		wantHost string
	}{
		{"default host", "", DefaultHost},
		{"custom host", "http://192.168.1.100:11434", "http://192.168.1.100:11434"},
		{"invalid URL falls back", "://bad", DefaultHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOllamaClient(llm.Config{BaseURL: tt.baseURL, ModelName: "qwen3:14b"})
			assert.Equal(t, "qwen3:14b", client.GetModelName())
			assert.Equal(t, tt.wantHost, client.Host())
		})
	}
}

func TestBuildRequest(t *testing.T) {
	req, err := buildRequest("qwen3:14b", llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage("system"),
			llm.NewUserMessage("list files"),
			{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{
					{ID: "call_0", Name: tools.ToolExecute, Args: deferred.EncodedArgs(`{"command":"ls"}`)},
				},
			},
			{
				Role:        llm.RoleUser,
				ToolResults: []llm.ToolResult{{ToolCallID: "call_0", Content: "main.go"}},
			},
		},
		Tools:       []tools.ToolDefinition{tools.NewAskFollowupTool().Definition()},
		MaxTokens:   256,
		Temperature: 0.2,
	})
	require.NoError(t, err)

	require.Len(t, req.Messages, 4)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	require.Len(t, req.Messages[2].ToolCalls, 1)
	command, ok := req.Messages[2].ToolCalls[0].Function.Arguments.Get("command")
	assert.True(t, ok)
	assert.Equal(t, "ls", command)

	assert.Equal(t, "tool", req.Messages[3].Role)
	assert.Equal(t, "call_0", req.Messages[3].ToolCallID)

	assert.Equal(t, 256, req.Options["num_predict"])
	require.NotNil(t, req.Stream)
	assert.False(t, *req.Stream)

	require.Len(t, req.Tools, 1)
	assert.Equal(t, tools.ToolAskFollowup, req.Tools[0].Function.Name)
	assert.Equal(t, []string{"questions"}, req.Tools[0].Function.Parameters.Required)
	_, hasQuestions := req.Tools[0].Function.Parameters.Properties.Get("questions")
	assert.True(t, hasQuestions)
}

func TestBuildRequestRejectsInvalidMessages(t *testing.T) {
	_, err := buildRequest("qwen3:14b", llm.CompletionRequest{
		Messages: []llm.CompletionMessage{{Role: llm.RoleUser, Content: " "}},
	})
	assert.Error(t, err)
}

func TestConvertResponse(t *testing.T) {
	raw := `{
		"model": "qwen3:14b",
		"message": {
			"role": "assistant",
			"content": "",
			"tool_calls": [{"function": {"name": "done", "arguments": {"summary": "built"}}}]
		},
		"done": true,
		"done_reason": "stop",
		"prompt_eval_count": 40,
		"eval_count": 12
	}`
	var resp api.ChatResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))

	out, err := convertResponse(&resp)
	require.NoError(t, err)
	assert.Equal(t, llm.StopReasonToolUse, out.StopReason)
	assert.Equal(t, 52, out.Usage.Total())
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "call_0", out.ToolCalls[0].ID)

	args, err := out.ToolCalls[0].Arguments()
	require.NoError(t, err)
	assert.Equal(t, "built", args["summary"])
}

func TestStopReason(t *testing.T) {
	tests := []struct {
		resp api.ChatResponse
		want string
	}{
		{api.ChatResponse{Done: true, DoneReason: "stop"}, llm.StopReasonEndTurn},
		{api.ChatResponse{Done: true}, llm.StopReasonEndTurn},
		{api.ChatResponse{Done: true, DoneReason: "length"}, llm.StopReasonMaxTokens},
		{api.ChatResponse{Done: true, DoneReason: "load"}, "load"},
		{api.ChatResponse{}, "incomplete"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stopReason(&tt.resp))
	}
}

func TestClassifyError(t *testing.T) {
	err := classifyError(api.StatusError{StatusCode: 404, ErrorMessage: "model not found"})
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))

	err = classifyError(errors.New("dial tcp 127.0.0.1:11434: connection refused"))
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeTransient))
}
