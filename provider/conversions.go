package provider

import (
	"encoding/json"
	"finassist/model"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
)

// ConvertToOllamaMessages converts conversation history to Ollama api.Message.
//
// An assistant message that requested a tool is sent back with its tool call
// so the model sees the pairing with the following tool-role message.
// Timestamps and tool-call IDs are not part of the Ollama API and are dropped.
func ConvertToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		result[i] = api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if msg.ToolCall != nil {
			result[i].ToolCalls = ConvertFromProviderToolCalls([]model.ToolCall{*msg.ToolCall})
		}
	}
	return result
}

// ConvertFromOllamaMessages converts Ollama api.Message to model.Message.
// Timestamp is left zero; callers stamp messages when they enter a history.
func ConvertFromOllamaMessages(messages []api.Message) []model.Message {
	result := make([]model.Message, len(messages))
	for i, msg := range messages {
		result[i] = model.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if calls := ConvertToProviderToolCalls(msg.ToolCalls); len(calls) > 0 {
			result[i].ToolCall = &calls[0]
			result[i].ToolCallID = calls[0].ID
		}
	}
	return result
}

// ParseToolArguments decodes a tool call's argument string. It reports false
// when the string is not a JSON object; an empty string counts as "{}".
func ParseToolArguments(argsJSON string) (map[string]any, bool) {
	if argsJSON == "" {
		return map[string]any{}, true
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		return nil, false
	}
	return args, true
}

// NewToolCall builds a model.ToolCall from a backend's raw id/name/arguments.
// Backends that do not assign call IDs get a generated one, so results can
// always be paired with the request.
func NewToolCall(id, name, rawArguments string) model.ToolCall {
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	args, _ := ParseToolArguments(rawArguments)
	return model.ToolCall{
		ID:           id,
		Name:         name,
		Arguments:    args,
		RawArguments: rawArguments,
	}
}

// ConvertToProviderToolCalls converts Ollama tool calls to model.ToolCall.
// Returns nil for an empty input.
func ConvertToProviderToolCalls(ollamaCalls []api.ToolCall) []model.ToolCall {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]model.ToolCall, len(ollamaCalls))
	for i, call := range ollamaCalls {
		raw, err := json.Marshal(call.Function.Arguments)
		if err != nil {
			raw = nil
		}
		result[i] = NewToolCall("", call.Function.Name, string(raw))
	}
	return result
}

// ConvertFromProviderToolCalls converts model.ToolCall back to Ollama tool calls.
func ConvertFromProviderToolCalls(providerCalls []model.ToolCall) []api.ToolCall {
	if len(providerCalls) == 0 {
		return nil
	}

	result := make([]api.ToolCall, len(providerCalls))
	for i, call := range providerCalls {
		result[i] = api.ToolCall{
			Function: api.ToolCallFunction{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		}
	}
	return result
}

// argumentsJSON returns the arguments as the JSON string OpenAI-style APIs expect.
func argumentsJSON(call model.ToolCall) string {
	if call.RawArguments != "" {
		return call.RawArguments
	}
	if call.Arguments == nil {
		return "{}"
	}
	raw, err := json.Marshal(call.Arguments)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
