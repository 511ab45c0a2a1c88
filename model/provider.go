package model

import (
	"context"
	"finassist/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Provider abstracts LLM backends (Ollama, OpenAI, OpenRouter, Anthropic)
// behind provider-agnostic message types.
//
// Defined here rather than in the provider package so that consumers
// (orchestrator, tests) can depend on it without importing every SDK.
type Provider interface {
	// Chat sends messages and streams responses back via callback.
	Chat(ctx context.Context, messages []Message, callback StreamCallback) error

	// ChatWithTools sends messages with the available tools. Tool requests
	// are delivered through the callback's toolCalls argument.
	ChatWithTools(ctx context.Context, messages []Message, tools []mcptypes.Tool, callback StreamCallback) error

	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)

	// GetModel returns the model name used for API calls.
	GetModel() string

	// GetDisplayName returns the model name without any vendor prefix.
	GetDisplayName() string

	SetModel(model string)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamCallback is called for each chunk of streamed response.
type StreamCallback func(chunk string, toolCalls []ToolCall) error
