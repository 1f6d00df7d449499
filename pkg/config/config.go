// Package config provides configuration loading, defaults, and validation for forgeloop.
// Config files are JSON (or YAML) with ${ENV} substitution and FORGELOOP_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderGoogle    = "google"
)

// Environment variables consulted when no api_key is configured.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// Project layout constants.
const (
	ProjectConfigDir      = ".forgeloop"
	ProjectConfigFilename = "config.json"
	DefaultSpecFile       = "app_spec.md"
	DefaultDBFile         = "forgeloop.db"
	DefaultOllamaHost     = "http://localhost:11434"
)

// Defaults.
const (
	DefaultProvider          = ProviderAnthropic
	DefaultModel             = "claude-sonnet-4-5"
	DefaultMaxTokens         = 8192
	DefaultTemperature       = 0.2
	DefaultShell             = "/bin/bash"
	DefaultCommandTimeoutSec = 10
	DefaultMaxIterations     = 50
	DefaultCodingSessions    = 0 // 0 = one session per implementation task
	DefaultMetricsAddr       = "127.0.0.1:9464"
)

// ModelConfig selects and tunes the model service.
type ModelConfig struct {
	Provider          string  `json:"provider" yaml:"provider"`
	Name              string  `json:"name" yaml:"name"`
	APIKey            string  `json:"api_key" yaml:"api_key"`
	BaseURL           string  `json:"base_url" yaml:"base_url"`
	MaxTokens         int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature       float64 `json:"temperature" yaml:"temperature"`
	RequestsPerMinute int     `json:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unlimited
	MaxRetries        int     `json:"max_retries" yaml:"max_retries"`
}

// SessionConfig configures the persistent command session.
type SessionConfig struct {
	Shell             string `json:"shell" yaml:"shell"`
	DefaultTimeoutSec int    `json:"default_timeout_sec" yaml:"default_timeout_sec"`
}

// ProjectConfig locates the generated project.
type ProjectConfig struct {
	Dir      string `json:"dir" yaml:"dir"`
	SpecFile string `json:"spec_file" yaml:"spec_file"`
}

// AgentsConfig bounds agent runs.
type AgentsConfig struct {
	MaxIterations     int  `json:"max_iterations" yaml:"max_iterations"`
	CodingSessions    int  `json:"coding_sessions" yaml:"coding_sessions"`
	ParallelToolCalls bool `json:"parallel_tool_calls" yaml:"parallel_tool_calls"`
}

// PersistenceConfig controls the run/decision audit store.
type PersistenceConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"db_path" yaml:"db_path"`
}

// MetricsConfig controls the Prometheus endpoint and textfile snapshot.
type MetricsConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	Textfile   string `json:"textfile" yaml:"textfile"`
}

// Config is the root configuration.
type Config struct {
	Model       ModelConfig       `json:"model" yaml:"model"`
	Session     SessionConfig     `json:"session" yaml:"session"`
	Project     ProjectConfig     `json:"project" yaml:"project"`
	Agents      AgentsConfig      `json:"agents" yaml:"agents"`
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(cfg *Config) {
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = DefaultProvider
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultModel
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = DefaultMaxTokens
	}
	if cfg.Model.Temperature == 0 {
		cfg.Model.Temperature = DefaultTemperature
	}
	if cfg.Model.MaxRetries == 0 {
		cfg.Model.MaxRetries = 3
	}
	if cfg.Session.Shell == "" {
		cfg.Session.Shell = DefaultShell
	}
	if cfg.Session.DefaultTimeoutSec == 0 {
		cfg.Session.DefaultTimeoutSec = DefaultCommandTimeoutSec
	}
	if cfg.Project.Dir == "" {
		cfg.Project.Dir = "project"
	}
	if cfg.Project.SpecFile == "" {
		cfg.Project.SpecFile = DefaultSpecFile
	}
	if cfg.Agents.MaxIterations == 0 {
		cfg.Agents.MaxIterations = DefaultMaxIterations
	}
	if cfg.Persistence.DBPath == "" {
		cfg.Persistence.DBPath = filepath.Join(ProjectConfigDir, DefaultDBFile)
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = DefaultMetricsAddr
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderOllama, ProviderGoogle:
	default:
		errs = append(errs, fmt.Errorf("model.provider %q must be one of anthropic, openai, ollama, google", c.Model.Provider))
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		errs = append(errs, errors.New("model.name is required"))
	}
	if c.Model.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("model.max_tokens must be positive, got %d", c.Model.MaxTokens))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature must be within [0, 2], got %v", c.Model.Temperature))
	}
	if c.Model.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("model.requests_per_minute cannot be negative"))
	}
	if c.Session.DefaultTimeoutSec < 0 {
		errs = append(errs, errors.New("session.default_timeout_sec cannot be negative"))
	}
	if c.Agents.MaxIterations < 0 {
		errs = append(errs, errors.New("agents.max_iterations cannot be negative"))
	}
	if c.Agents.CodingSessions < 0 {
		errs = append(errs, errors.New("agents.coding_sessions cannot be negative"))
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" && c.Metrics.Textfile == "" {
		errs = append(errs, errors.New("metrics enabled but neither listen_addr nor textfile is set"))
	}

	return errors.Join(errs...)
}

// CommandTimeout returns the default per-command timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Session.DefaultTimeoutSec) * time.Second
}

// SpecPath returns the path of the rendered plan document.
func (c *Config) SpecPath() string {
	return filepath.Join(c.Project.Dir, c.Project.SpecFile)
}

// PlanJSONPath returns the path of the structured plan stored next to the rendered document.
func (c *Config) PlanJSONPath() string {
	return strings.TrimSuffix(c.SpecPath(), filepath.Ext(c.SpecPath())) + ".json"
}

// PlanYAMLPath returns the path of the YAML export of the plan.
func (c *Config) PlanYAMLPath() string {
	return strings.TrimSuffix(c.SpecPath(), filepath.Ext(c.SpecPath())) + ".yaml"
}

// APIKey returns the configured key for the model provider, falling back to the provider's env var.
// For Ollama the host URL is returned instead.
func (c *Config) APIKey() (string, error) {
	if c.Model.Provider == ProviderOllama {
		if c.Model.BaseURL != "" {
			return c.Model.BaseURL, nil
		}
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return DefaultOllamaHost, nil
	}

	if c.Model.APIKey != "" {
		return c.Model.APIKey, nil
	}

	var envVar string
	switch c.Model.Provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	default:
		return "", fmt.Errorf("unknown provider: %s", c.Model.Provider)
	}

	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: set model.api_key or %s", envVar)
}
