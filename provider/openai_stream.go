package provider

import (
	"context"
	"finassist/config"
	"finassist/model"
	"strings"

	"github.com/openai/openai-go/v3"
)

// streamChatCompletion runs a streaming chat completion against any
// OpenAI-compatible endpoint and reports text deltas and finished tool calls
// through callback. fromAPIName maps tool names back from the wire form.
func streamChatCompletion(ctx context.Context, client openai.Client, providerID string, params openai.ChatCompletionNewParams, callback model.StreamCallback, fromAPIName func(string) string) error {
	if callback == nil {
		callback = func(string, []model.ToolCall) error { return nil }
	}
	if fromAPIName == nil {
		fromAPIName = func(name string) string { return name }
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	var contentBuilder strings.Builder
	apiToolCalls := 0

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			apiToolCalls++
			call := NewToolCall(tool.ID, fromAPIName(tool.Name), tool.Arguments)
			if err := callback("", []model.ToolCall{call}); err != nil {
				return err
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			content := chunk.Choices[0].Delta.Content
			contentBuilder.WriteString(content)
			if err := callback(content, nil); err != nil {
				return err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return WrapError(providerID, err)
	}

	// A call still open when the stream ends is not reported by JustFinishedToolCall.
	if apiToolCalls == 0 && len(acc.Choices) > 0 {
		for _, tc := range acc.Choices[0].Message.ToolCalls {
			apiToolCalls++
			call := NewToolCall(tc.ID, fromAPIName(tc.Function.Name), tc.Function.Arguments)
			if err := callback("", []model.ToolCall{call}); err != nil {
				return err
			}
		}
	}

	if apiToolCalls == 0 && len(params.Tools) > 0 {
		if leaked := recoverLeakedToolCalls(contentBuilder.String()); len(leaked) > 0 {
			config.Debugf("[%s] Recovered %d tool call(s) leaked into content", providerID, len(leaked))
			for i := range leaked {
				leaked[i].Name = fromAPIName(leaked[i].Name)
			}
			return callback("", leaked)
		}
	}

	return nil
}

// ConvertToOpenAIMessages converts conversation history to OpenAI format.
func ConvertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	return convertToOpenAIMessages(messages, nil)
}

func convertToOpenAIMessages(messages []model.Message, toAPIName func(string) string) []openai.ChatCompletionMessageParamUnion {
	if toAPIName == nil {
		toAPIName = func(name string) string { return name }
	}

	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))

		case model.RoleAssistant:
			if msg.ToolCall == nil {
				result = append(result, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: []openai.ChatCompletionMessageToolCallUnionParam{{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: msg.ToolCall.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      toAPIName(msg.ToolCall.Name),
							Arguments: argumentsJSON(*msg.ToolCall),
						},
					},
				}},
			}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case model.RoleTool:
			if msg.ToolCallID == "" {
				// Unpaired results cannot be sent as tool messages.
				result = append(result, openai.UserMessage(msg.Content))
				continue
			}
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))

		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}

	return result
}
