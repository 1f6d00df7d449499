package agent

import (
	"fmt"
	"time"

	"forgeloop/pkg/agent/internal/llmimpl/anthropic"
	"forgeloop/pkg/agent/internal/llmimpl/google"
	"forgeloop/pkg/agent/internal/llmimpl/ollama"
	"forgeloop/pkg/agent/internal/llmimpl/openaiofficial"
	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/middleware/logging"
	"forgeloop/pkg/agent/middleware/metrics"
	"forgeloop/pkg/agent/middleware/resilience/ratelimit"
	"forgeloop/pkg/agent/middleware/resilience/retry"
	"forgeloop/pkg/agent/middleware/resilience/timeout"
	"forgeloop/pkg/agent/middleware/validation"
	"forgeloop/pkg/config"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/utils"
)

// DefaultRequestTimeout bounds a single model request, retries excluded.
const DefaultRequestTimeout = 5 * time.Minute

// LLMClientFactory creates LLM clients with properly configured middleware chains.
type LLMClientFactory struct {
	config          *config.Config
	metricsRecorder metrics.Recorder
	logger          *logx.Logger
	requestTimeout  time.Duration

	// newRaw builds the provider client; replaced in tests.
	newRaw func(provider string, cfg llm.Config) (llm.LLMClient, error)
}

// NewLLMClientFactory creates a factory for cfg. A nil recorder discards metrics.
func NewLLMClientFactory(cfg *config.Config, recorder metrics.Recorder, logger *logx.Logger) (*LLMClientFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if logger == nil {
		logger = logx.NewLogger("llm")
	}
	return &LLMClientFactory{
		config:          cfg,
		metricsRecorder: recorder,
		logger:          logger,
		requestTimeout:  DefaultRequestTimeout,
		newRaw:          NewRawClient,
	}, nil
}

// NewRawClient creates the provider client without middleware.
func NewRawClient(provider string, cfg llm.Config) (llm.LLMClient, error) {
	if err := cfg.Validate(provider != config.ProviderOllama); err != nil {
		return nil, fmt.Errorf("invalid %s client config: %w", provider, err)
	}
	switch provider {
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClient(cfg), nil
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClient(cfg), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClient(cfg), nil
	case config.ProviderGoogle:
		return google.NewGeminiClient(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}

// CreateClient creates the configured model client with the full middleware chain.
func (f *LLMClientFactory) CreateClient() (llm.LLMClient, error) {
	key, err := f.config.APIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", f.config.Model.Provider, err)
	}

	clientCfg := llm.Config{
		APIKey:      key,
		BaseURL:     f.config.Model.BaseURL,
		ModelName:   f.config.Model.Name,
		MaxTokens:   f.config.Model.MaxTokens,
		Temperature: float32(f.config.Model.Temperature),
	}
	if f.config.Model.Provider == config.ProviderOllama {
		// APIKey carries the host for Ollama.
		clientCfg.BaseURL, clientCfg.APIKey = key, ""
	}

	rawClient, err := f.newRaw(f.config.Model.Provider, clientCfg)
	if err != nil {
		return nil, err
	}

	counter, err := utils.NewTokenCounter(f.config.Model.Name)
	if err != nil {
		counter = nil
	}

	retryConfig := retry.DefaultConfig
	retryConfig.MaxAttempts = f.config.Model.MaxRetries + 1
	retryPolicy := retry.NewPolicy(retryConfig, nil)

	// Logging -> Metrics -> Retry -> RateLimit -> Timeout -> EmptyResponse -> RawClient
	client := llm.Chain(rawClient,
		logging.Middleware(f.logger),
		metrics.Middleware(f.metricsRecorder, metrics.TokenCountingExtractor(counter)),
		retry.Middleware(retryPolicy, f.logger),
		ratelimit.Middleware(ratelimit.NewLimiter(f.config.Model.RequestsPerMinute), f.metricsRecorder),
		timeout.Middleware(f.requestTimeout),
		validation.EmptyResponseMiddleware(),
	)

	f.logger.Info("Created %s client for model %s", f.config.Model.Provider, f.config.Model.Name)
	return client, nil
}
