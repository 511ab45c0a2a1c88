package testutil

import (
	"encoding/json"
	"finassist/model"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// TestMessages returns a sample conversation for testing
func TestMessages() []model.Message {
	return []model.Message{
		{Role: model.RoleUser, Content: "¿Cuánto gasté este mes?", Timestamp: time.Now()},
		{Role: model.RoleAssistant, Content: "Este mes llevas 420,50 € en gastos.", Timestamp: time.Now()},
		{Role: model.RoleUser, Content: "Apunta 12 € de café", Timestamp: time.Now()},
	}
}

// SingleUserMessage returns a single user message for simple tests
func SingleUserMessage(content string) []model.Message {
	return []model.Message{
		{Role: model.RoleUser, Content: content, Timestamp: time.Now()},
	}
}

// TestMCPTools returns a small tool set shaped like the finance tools.
func TestMCPTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		mcptypes.NewTool("get_budget_summary",
			mcptypes.WithDescription("Income, expenses and balance for the current month"),
		),
		mcptypes.NewTool("analyze_spending",
			mcptypes.WithDescription("Spending by category over a period"),
			mcptypes.WithString("period",
				mcptypes.Required(),
				mcptypes.Enum("week", "month", "year"),
			),
		),
	}
}

// ToolCall builds a model.ToolCall whose RawArguments match args.
func ToolCall(id, name string, args map[string]any) model.ToolCall {
	raw, _ := json.Marshal(args)
	return model.ToolCall{
		ID:           id,
		Name:         name,
		Arguments:    args,
		RawArguments: string(raw),
	}
}

// EmptyMessages returns an empty message slice for edge case testing
func EmptyMessages() []model.Message {
	return []model.Message{}
}

func SystemMessage(content string) model.Message {
	return model.Message{
		Role:      model.RoleSystem,
		Content:   content,
		Timestamp: time.Now(),
	}
}
