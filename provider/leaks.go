package provider

import (
	"encoding/json"
	"finassist/model"
	"regexp"
	"strings"
)

// Some models answer with a tool call written out as text instead of using
// the API's tool channel. These parsers recover such calls from the final
// content so they can go through the normal validation path.

var (
	fencedJSONPattern  = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	toolCallTagPattern = regexp.MustCompile(`(?s)<tool_call>\s*(.*?)\s*</tool_call>`)
	functionTagPattern = regexp.MustCompile(`(?s)<function=([A-Za-z0-9_\-.]+)>\s*(.*?)\s*</function>`)
)

type leakedCall struct {
	Name       string          `json:"name"`
	Tool       string          `json:"tool"`
	Arguments  json.RawMessage `json:"arguments"`
	Parameters json.RawMessage `json:"parameters"`
}

// ParseLeakedJSONToolCalls finds {"name": ..., "arguments": {...}} objects
// either as the whole content or inside a fenced code block.
func ParseLeakedJSONToolCalls(content string) []model.ToolCall {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}

	candidates := []string{}
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		candidates = append(candidates, trimmed)
	}
	for _, m := range fencedJSONPattern.FindAllStringSubmatch(content, -1) {
		candidates = append(candidates, m[1])
	}

	var calls []model.ToolCall
	for _, c := range candidates {
		if call, ok := decodeLeakedCall(c); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// ParseLeakedXMLToolCalls handles <tool_call>{json}</tool_call> and
// <function=name>{json}</function> markup.
func ParseLeakedXMLToolCalls(content string) []model.ToolCall {
	var calls []model.ToolCall

	for _, m := range toolCallTagPattern.FindAllStringSubmatch(content, -1) {
		if call, ok := decodeLeakedCall(m[1]); ok {
			calls = append(calls, call)
		}
	}

	for _, m := range functionTagPattern.FindAllStringSubmatch(content, -1) {
		calls = append(calls, NewToolCall("", m[1], strings.TrimSpace(m[2])))
	}

	return calls
}

func decodeLeakedCall(raw string) (model.ToolCall, bool) {
	var lc leakedCall
	if err := json.Unmarshal([]byte(raw), &lc); err != nil {
		return model.ToolCall{}, false
	}

	name := lc.Name
	if name == "" {
		name = lc.Tool
	}
	args := lc.Arguments
	if len(args) == 0 {
		args = lc.Parameters
	}
	if name == "" || len(args) == 0 {
		return model.ToolCall{}, false
	}

	// Some models double-encode: "arguments": "{\"amount\": 5}"
	var asString string
	if err := json.Unmarshal(args, &asString); err == nil {
		return NewToolCall("", name, asString), true
	}
	return NewToolCall("", name, string(args)), true
}

// recoverLeakedToolCalls runs both parsers and returns the calls found, if any.
func recoverLeakedToolCalls(content string) []model.ToolCall {
	if calls := ParseLeakedJSONToolCalls(content); len(calls) > 0 {
		return calls
	}
	return ParseLeakedXMLToolCalls(content)
}
