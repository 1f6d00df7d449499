package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/llmerrors"
	"forgeloop/pkg/config"
)

type recordingRecorder struct {
	requests []string
}

func (r *recordingRecorder) ObserveRequest(model, status, _ string, _, _ int, _ time.Duration) {
	r.requests = append(r.requests, model+":"+status)
}
func (r *recordingRecorder) IncThrottle(_, _ string)                   {}
func (r *recordingRecorder) ObserveQueueWait(_ string, _ time.Duration) {}

func TestNewRawClientProviders(t *testing.T) {
	cfg := llm.Config{APIKey: "test-key", ModelName: "some-model"}
	for _, provider := range []string{config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderOllama, config.ProviderGoogle} {
		client, err := NewRawClient(provider, cfg)
		if err != nil {
			t.Errorf("%s: unexpected error %v", provider, err)
			continue
		}
		if client.GetModelName() != "some-model" {
			t.Errorf("%s: expected model name to pass through, got %q", provider, client.GetModelName())
		}
	}

	if _, err := NewRawClient("mistral", cfg); !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("Expected ErrUnsupportedProvider, got %v", err)
	}
	if _, err := NewRawClient(config.ProviderAnthropic, llm.Config{ModelName: "m"}); err == nil {
		t.Error("Expected missing API key to be rejected")
	}
	if _, err := NewRawClient(config.ProviderOllama, llm.Config{ModelName: "llama3"}); err != nil {
		t.Errorf("Ollama should not need an API key: %v", err)
	}
}

func TestCreateClientWrapsMiddleware(t *testing.T) {
	cfg := config.Default()
	cfg.Model.APIKey = "test-key"
	cfg.Model.MaxRetries = 2

	recorder := &recordingRecorder{}
	factory, err := NewLLMClientFactory(cfg, recorder, nil)
	if err != nil {
		t.Fatalf("NewLLMClientFactory failed: %v", err)
	}

	var raw *MockLLMClient
	factory.newRaw = func(provider string, c llm.Config) (llm.LLMClient, error) {
		if provider != config.ProviderAnthropic || c.APIKey != "test-key" {
			t.Errorf("unexpected raw client request %s %+v", provider, c)
		}
		transient := llmerrors.NewError(llmerrors.ErrorTypeTransient, "blip")
		raw = NewMockLLMClient([]llm.CompletionResponse{{Content: "hi", StopReason: llm.StopReasonEndTurn}}, []error{transient})
		return raw.WithModel(c.ModelName), nil
	}

	client, err := factory.CreateClient()
	if err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	if client.GetModelName() != cfg.Model.Name {
		t.Errorf("Expected model %s, got %s", cfg.Model.Name, client.GetModelName())
	}

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hello")}))
	if err != nil {
		t.Fatalf("Expected retry to recover from a transient error, got %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("Expected content 'hi', got %q", resp.Content)
	}
	if got := len(raw.Requests()); got != 2 {
		t.Errorf("Expected 2 raw attempts, got %d", got)
	}
	if len(recorder.requests) != 1 || recorder.requests[0] != cfg.Model.Name+":success" {
		t.Errorf("Expected one successful request recorded, got %v", recorder.requests)
	}
}

func TestCreateClientOllamaUsesHost(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Provider = config.ProviderOllama
	cfg.Model.Name = "llama3.1"
	cfg.Model.BaseURL = "http://gpu-box:11434"

	factory, err := NewLLMClientFactory(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewLLMClientFactory failed: %v", err)
	}
	factory.newRaw = func(_ string, c llm.Config) (llm.LLMClient, error) {
		if c.BaseURL != "http://gpu-box:11434" || c.APIKey != "" {
			t.Errorf("Expected host in BaseURL and no key, got %+v", c)
		}
		return NewMockLLMClient(nil, nil), nil
	}
	if _, err := factory.CreateClient(); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
}
