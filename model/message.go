package model

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a conversation history.
//
// An assistant message that requests a tool carries ToolCall; the tool
// message answering it carries the same ToolCallID and the tool's name.
type Message struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ToolName   string    `json:"name,omitempty"`
	ToolCallID string    `json:"toolCallId,omitempty"`
	ToolCall   *ToolCall `json:"functionCall,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ToolCall is a model's request to invoke a named tool.
//
// RawArguments holds the arguments exactly as the backend produced them;
// Arguments is their decoded form and is nil when they were not a JSON object.
type ToolCall struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments"`
	RawArguments string         `json:"-"`
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// NewToolCallMessage records the assistant's tool request in the history.
func NewToolCallMessage(content string, call ToolCall) Message {
	return Message{
		Role:       RoleAssistant,
		Content:    content,
		ToolCallID: call.ID,
		ToolCall:   &call,
		Timestamp:  time.Now(),
	}
}

func NewToolMessage(call ToolCall, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Timestamp:  time.Now(),
	}
}
