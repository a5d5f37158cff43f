package factory

import (
	"github.com/modelmux/modelmux/pkg/llm"
	"github.com/modelmux/modelmux/pkg/providers/anthropic"
	"github.com/modelmux/modelmux/pkg/providers/mock"
	"github.com/modelmux/modelmux/pkg/providers/ollama"
	"github.com/modelmux/modelmux/pkg/providers/openai"
)

func init() {
	// Register the OpenAI provider
	RegisterProvider("openai", func(config llm.ClientConfig) (llm.Client, error) {
		return openai.New(config)
	})

	// Register the OpenRouter provider (OpenAI wire format, different base URL)
	RegisterProvider("openrouter", func(config llm.ClientConfig) (llm.Client, error) {
		return openai.NewOpenRouter(config)
	})

	// Register the Anthropic provider
	RegisterProvider("anthropic", func(config llm.ClientConfig) (llm.Client, error) {
		return anthropic.New(config)
	})

	// Register the Ollama provider
	RegisterProvider("ollama", func(config llm.ClientConfig) (llm.Client, error) {
		return ollama.New(config)
	})

	// Register the mock provider
	RegisterProvider("mock", func(config llm.ClientConfig) (llm.Client, error) {
		return mock.NewClient(config.Model, "mock")
	})
}
