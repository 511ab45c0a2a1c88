// Package provider implements model.Provider for the supported LLM backends.
//
// Every backend converts the provider-agnostic model.Message history and
// mcp tool definitions into its SDK's types, streams the reply back through
// a model.StreamCallback, and reports tool requests as model.ToolCall values
// with a call ID (generated when the backend has none).
//
// # Backends
//
//   - OllamaProvider: local Ollama server (github.com/ollama/ollama/api)
//   - OpenAIProvider: OpenAI (github.com/openai/openai-go/v3)
//   - OpenRouterProvider: OpenRouter, OpenAI-compatible
//   - AnthropicProvider: Claude (github.com/anthropics/anthropic-sdk-go)
//
// # Usage
//
//	p, err := provider.NewProvider(provider.Config{
//	    Type:   provider.ProviderTypeOpenAI,
//	    APIKey: key,
//	    Model:  "gpt-4o-mini",
//	})
//	if err != nil {
//	    // handle error
//	}
//	err = p.ChatWithTools(ctx, history, registry.List(), callback)
package provider

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
}
