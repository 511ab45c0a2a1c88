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
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenRouterProvider talks to OpenRouter's OpenAI-compatible API.
type OpenRouterProvider struct {
	client  openai.Client
	model   string
	baseURL string
}

func NewOpenRouterProvider(baseURL, apiKey, model string) (*OpenRouterProvider, error) {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter: %w", ErrNoAPIKey)
	}
	if model == "" {
		model = "openai/gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithHeader("X-Title", "finassist"),
		option.WithMaxRetries(0),
	)

	return &OpenRouterProvider{
		client:  client,
		model:   model,
		baseURL: baseURL,
	}, nil
}

// shouldSkipToolInstructions reports models that handle tools natively and
// start leaking XML tool calls when given explicit instructions.
func shouldSkipToolInstructions(modelName string) bool {
	modelLower := strings.ToLower(modelName)
	for _, prefix := range []string{"qwen"} {
		if strings.Contains(modelLower, prefix) {
			return true
		}
	}
	return false
}

// OpenRouter requires tool names matching ^[a-zA-Z0-9_-]{1,64}$.
func toOpenRouterToolName(name string) string {
	return strings.ReplaceAll(name, ".", "__")
}

func fromOpenRouterToolName(name string) string {
	return strings.ReplaceAll(name, "__", ".")
}

func convertToolNamesForOpenRouter(tools []mcptypes.Tool) []mcptypes.Tool {
	converted := make([]mcptypes.Tool, len(tools))
	for i, tool := range tools {
		converted[i] = tool
		converted[i].Name = toOpenRouterToolName(tool.Name)
	}
	return converted
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

func (p *OpenRouterProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if len(tools) > 0 {
		if shouldSkipToolInstructions(p.model) {
			config.Debugf("[OpenRouter] Model '%s': skipping tool instructions", p.model)
		} else {
			toolInstruction := model.Message{
				Role:    model.RoleSystem,
				Content: buildOpenRouterToolInstructions(tools),
			}
			messages = append([]model.Message{toolInstruction}, messages...)
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: convertToOpenAIMessages(messages, toOpenRouterToolName),
		Model:    openai.ChatModel(p.model),
	}

	if len(tools) > 0 {
		params.Tools = mcp.ConvertMCPToolsToOpenAIFormat(convertToolNamesForOpenRouter(tools))
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("auto"),
		}
	}

	return streamChatCompletion(ctx, p.client, string(ProviderTypeOpenRouter), params, callback, fromOpenRouterToolName)
}

// ListModels lists OpenRouter models with the vendor prefix stripped for display.
func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, WrapError(string(ProviderTypeOpenRouter), err)
	}

	result := make([]ollama.ModelInfo, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, ollama.ModelInfo{
			Name:         stripProviderPrefix(m.ID),
			InternalName: m.ID,
			Provider:     string(ProviderTypeOpenRouter),
		})
	}

	return result, nil
}

// GetModel returns the full name with vendor prefix, e.g. "openai/gpt-4o-mini".
func (p *OpenRouterProvider) GetModel() string {
	return p.model
}

// GetDisplayName returns the model name without vendor prefix.
func (p *OpenRouterProvider) GetDisplayName() string {
	return stripProviderPrefix(p.model)
}

func (p *OpenRouterProvider) SetModel(model string) {
	p.model = model
}

func (p *OpenRouterProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenRouter ping failed: %w", WrapError(string(ProviderTypeOpenRouter), err))
	}
	return nil
}

// "meta-llama/llama-3.2-90b-instruct" → "llama-3.2-90b-instruct"
func stripProviderPrefix(modelName string) string {
	if idx := strings.Index(modelName, "/"); idx != -1 {
		return modelName[idx+1:]
	}
	return modelName
}
