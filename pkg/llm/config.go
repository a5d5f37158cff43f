// Configuration types and environment/file loading
package llm

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOllamaModel    = "llama3.2"
)

const (
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultAnthropicBaseURL  = "https://api.anthropic.com"
	DefaultOllamaBaseURL     = "http://localhost:11434"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultOllamaTimeout = 60 * time.Second
)

// ClientConfig holds configuration for creating LLM clients
type ClientConfig struct {
	Provider string            `json:"provider" yaml:"provider"` // openai, openrouter, anthropic, ollama
	Model    string            `json:"model" yaml:"model"`
	APIKey   string            `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL  string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Timeout  time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ToolMode ToolMode          `json:"tool_mode,omitempty" yaml:"tool_mode,omitempty"` // empty means undetermined
	Logger   *slog.Logger      `json:"-" yaml:"-"`
	Extra    map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"` // Provider-specific configs
}

// UnmarshalYAML decodes a client configuration, accepting timeouts in
// time.ParseDuration notation ("30s", "2m")
func (c *ClientConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Provider string            `yaml:"provider"`
		Model    string            `yaml:"model"`
		APIKey   string            `yaml:"api_key"`
		BaseURL  string            `yaml:"base_url"`
		Timeout  string            `yaml:"timeout"`
		ToolMode ToolMode          `yaml:"tool_mode"`
		Extra    map[string]string `yaml:"extra"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.Provider = raw.Provider
	c.Model = raw.Model
	c.APIKey = raw.APIKey
	c.BaseURL = raw.BaseURL
	c.ToolMode = raw.ToolMode
	c.Extra = raw.Extra

	if raw.Timeout != "" {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", raw.Timeout, err)
		}
		c.Timeout = timeout
	}
	return nil
}

// GetLogger returns the configured logger, or a discard logger when none is set
func (c ClientConfig) GetLogger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}

// LoadConfigFile reads a YAML client configuration from disk
func LoadConfigFile(path string) (ClientConfig, error) {
	var cfg ClientConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// parseTimeoutFromEnv parses timeout from environment variable with fallback to default
func parseTimeoutFromEnv(envVar string, defaultTimeout time.Duration) time.Duration {
	if timeoutStr := os.Getenv(envVar); timeoutStr != "" {
		if timeoutSecs, err := strconv.Atoi(timeoutStr); err == nil && timeoutSecs > 0 {
			return time.Duration(timeoutSecs) * time.Second
		}
	}
	return defaultTimeout
}

// GetFromEnv resolves a client configuration from the environment. A .env
// file in the working directory is loaded first when present. Providers are
// tried in order: custom OpenAI-compatible endpoint, OpenAI, Anthropic,
// OpenRouter, then local Ollama as the fallback.
func GetFromEnv() ClientConfig {
	_ = godotenv.Load()

	model := os.Getenv("MODEL")

	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			apiKey = "dummy" // Some endpoints don't require real keys
		}
		if model == "" {
			model = DefaultOpenAIModel
		}
		return ClientConfig{
			Provider: "openai",
			Model:    model,
			APIKey:   apiKey,
			BaseURL:  baseURL,
			Timeout:  parseTimeoutFromEnv("OPENAI_TIMEOUT", DefaultTimeout),
		}
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if model == "" {
			model = DefaultOpenAIModel
		}
		return ClientConfig{
			Provider: "openai",
			Model:    model,
			APIKey:   apiKey,
			Timeout:  parseTimeoutFromEnv("OPENAI_TIMEOUT", DefaultTimeout),
		}
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		if model == "" {
			model = DefaultAnthropicModel
		}
		return ClientConfig{
			Provider: "anthropic",
			Model:    model,
			APIKey:   apiKey,
			Timeout:  parseTimeoutFromEnv("ANTHROPIC_TIMEOUT", DefaultTimeout),
		}
	}

	if apiKey := os.Getenv("OPENROUTER_API_KEY"); apiKey != "" {
		if model == "" {
			model = DefaultOpenAIModel
		}
		return ClientConfig{
			Provider: "openrouter",
			Model:    model,
			APIKey:   apiKey,
			Timeout:  parseTimeoutFromEnv("OPENROUTER_TIMEOUT", DefaultTimeout),
		}
	}

	if model == "" {
		model = DefaultOllamaModel
	}
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	return ClientConfig{
		Provider: "ollama",
		Model:    model,
		BaseURL:  baseURL,
		Timeout:  parseTimeoutFromEnv("OLLAMA_TIMEOUT", DefaultOllamaTimeout),
	}
}
