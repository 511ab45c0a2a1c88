package provider

import (
	"context"
	"finassist/config"
	"finassist/mcp"
	"finassist/model"
	"finassist/ollama"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
)

// OllamaProvider adapts ollama.Client to model.Provider.
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllamaProvider creates a new Ollama provider instance.
// Empty baseURL and model fall back to the ollama package defaults.
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaProvider{client: client}, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools streams a chat. Models without native tool support get the
// request without tools and may still leak a call as text, which is recovered.
func (p *OllamaProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if callback == nil {
		callback = func(string, []model.ToolCall) error { return nil }
	}

	var ollamaTools []api.Tool
	if len(tools) > 0 {
		if p.client.SupportsToolCalling() {
			ollamaTools = mcp.ConvertMCPToolsToOllama(tools)
		} else {
			config.Debugf("[Ollama] Model '%s' has no native tool support, sending without tools", p.client.GetModel())
		}
	}

	var content strings.Builder
	sawToolCall := false
	err := p.client.ChatWithTools(ctx, ConvertToOllamaMessages(messages), ollamaTools, func(chunk string, ollamaCalls []api.ToolCall) error {
		content.WriteString(chunk)
		calls := ConvertToProviderToolCalls(ollamaCalls)
		if len(calls) > 0 {
			sawToolCall = true
		}
		return callback(chunk, calls)
	})
	if err != nil {
		return WrapError(string(ProviderTypeOllama), err)
	}

	if len(tools) > 0 && !sawToolCall {
		if leaked := recoverLeakedToolCalls(content.String()); len(leaked) > 0 {
			config.Debugf("[Ollama] Recovered %d tool call(s) leaked into content", len(leaked))
			return callback("", leaked)
		}
	}
	return nil
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	models, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, WrapError(string(ProviderTypeOllama), err)
	}
	return models, nil
}

func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

// GetDisplayName is the model name; Ollama has no vendor prefixes.
func (p *OllamaProvider) GetDisplayName() string {
	return p.client.GetModel()
}

func (p *OllamaProvider) SetModel(model string) {
	p.client.SetModel(model)
}

func (p *OllamaProvider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("Ollama ping failed: %w", WrapError(string(ProviderTypeOllama), err))
	}
	return nil
}
