package llm

import (
	"context"
	"testing"

	"forgeloop/pkg/deferred"
)

type mockLLMClient struct {
	completeFunc func(context.Context, CompletionRequest) (CompletionResponse, error)
}

func (m *mockLLMClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, req)
	}
	return CompletionResponse{Content: "mock response"}, nil
}

func (m *mockLLMClient) GetModelName() string { return "mock-model" }

func wrapContent(transform func(string) string) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err
				}
				resp.Content = transform(resp.Content)
				return resp, nil
			},
			next.GetModelName,
		)
	}
}

func TestChainOrder(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: "base"}, nil
		},
	}

	client := Chain(base,
		wrapContent(func(s string) string { return "mw1:" + s }),
		wrapContent(func(s string) string { return s + ":mw2" }),
		wrapContent(func(s string) string { return "[" + s + "]" }),
	)

	resp, err := client.Complete(context.Background(), NewCompletionRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// mw3 is innermost, so it transforms first.
	if resp.Content != "mw1:[base]:mw2" {
		t.Errorf("expected 'mw1:[base]:mw2', got %q", resp.Content)
	}
	if client.GetModelName() != "mock-model" {
		t.Errorf("expected model name to pass through, got %q", client.GetModelName())
	}
}

func TestChainNoMiddleware(t *testing.T) {
	base := &mockLLMClient{}
	if Chain(base) != LLMClient(base) {
		t.Error("expected Chain with no middleware to return the base client")
	}
	if Chain(base, nil) != LLMClient(base) {
		t.Error("expected nil middleware to be skipped")
	}
}

func TestChainRequestModification(t *testing.T) {
	var seen int
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
			seen = req.MaxTokens
			return CompletionResponse{}, nil
		},
	}
	capTokens := func(next LLMClient) LLMClient {
		return WrapClient(func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
			req.MaxTokens = 100
			return next.Complete(ctx, req)
		}, next.GetModelName)
	}

	if _, err := Chain(base, capTokens).Complete(context.Background(), NewCompletionRequest(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != 100 {
		t.Errorf("expected modified MaxTokens 100, got %d", seen)
	}
}

func TestNewCompletionRequest(t *testing.T) {
	req := NewCompletionRequest([]CompletionMessage{NewSystemMessage("sys"), NewUserMessage("hi")})
	if req.MaxTokens != DefaultMaxTokens || req.Temperature != TemperatureDefault {
		t.Errorf("unexpected defaults: %+v", req)
	}
	if req.Messages[0].Role != RoleSystem || req.Messages[1].Role != RoleUser {
		t.Errorf("unexpected roles: %v %v", req.Messages[0].Role, req.Messages[1].Role)
	}
}

func TestToolCallArguments(t *testing.T) {
	structured := ToolCall{Name: "execute", Args: deferred.StructuredArgs{"command": "ls"}}
	encoded := ToolCall{Name: "execute", Args: deferred.EncodedArgs(`{"command":"ls"}`)}

	for _, tc := range []ToolCall{structured, encoded} {
		args, err := tc.Arguments()
		if err != nil {
			t.Fatalf("Arguments failed: %v", err)
		}
		if args["command"] != "ls" {
			t.Errorf("expected command ls, got %v", args["command"])
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		requireKey bool
		wantErr    bool
	}{
		{"valid", Config{APIKey: "k", ModelName: "m", MaxTokens: 10, Temperature: 0.3}, true, false},
		{"missing key", Config{ModelName: "m"}, true, true},
		{"local without key", Config{ModelName: "llama3"}, false, false},
		{"missing model", Config{APIKey: "k"}, true, true},
		{"bad temperature", Config{APIKey: "k", ModelName: "m", Temperature: 3}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.requireKey)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUsageTotal(t *testing.T) {
	if got := (Usage{InputTokens: 7, OutputTokens: 5}).Total(); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
}
