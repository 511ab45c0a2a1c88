package mcp

import (
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
)

func createTransactionTool() mcptypes.Tool {
	return mcptypes.NewTool("create_transaction",
		mcptypes.WithDescription("Record an income or expense"),
		mcptypes.WithString("type",
			mcptypes.Required(),
			mcptypes.Enum("expense", "income"),
			mcptypes.Description("Transaction kind"),
		),
		mcptypes.WithNumber("amount",
			mcptypes.Required(),
			mcptypes.Min(0.01),
			mcptypes.Description("Amount, always positive"),
		),
		mcptypes.WithString("date",
			mcptypes.Pattern(`^\d{4}-\d{2}-\d{2}$`),
			mcptypes.Description("Date as YYYY-MM-DD"),
		),
	)
}

func TestConvertMCPToolsToOllama(t *testing.T) {
	tests := []struct {
		name     string
		input    []mcptypes.Tool
		expected int
		validate func(t *testing.T, result []api.Tool)
	}{
		{
			name:     "empty tools",
			input:    []mcptypes.Tool{},
			expected: 0,
		},
		{
			name: "tool without parameters",
			input: []mcptypes.Tool{
				mcptypes.NewTool("get_budget_summary", mcptypes.WithDescription("Current month totals")),
			},
			expected: 1,
			validate: func(t *testing.T, result []api.Tool) {
				if result[0].Type != "function" {
					t.Errorf("expected type 'function', got %q", result[0].Type)
				}
				if result[0].Function.Name != "get_budget_summary" {
					t.Errorf("expected name 'get_budget_summary', got %q", result[0].Function.Name)
				}
				if result[0].Function.Parameters.Type != "object" {
					t.Errorf("expected object parameters, got %q", result[0].Function.Parameters.Type)
				}
			},
		},
		{
			name:     "builder tool with enum and pattern",
			input:    []mcptypes.Tool{createTransactionTool()},
			expected: 1,
			validate: func(t *testing.T, result []api.Tool) {
				params := result[0].Function.Parameters
				if len(params.Required) != 2 {
					t.Errorf("expected 2 required fields, got %d", len(params.Required))
				}
				if len(params.Properties) != 3 {
					t.Fatalf("expected 3 properties, got %d", len(params.Properties))
				}

				typeProp := params.Properties["type"]
				if len(typeProp.Enum) != 2 {
					t.Errorf("expected 2 enum values from []string enum, got %d", len(typeProp.Enum))
				}

				dateProp := params.Properties["date"]
				if dateProp.Description != `Date as YYYY-MM-DD (pattern ^\d{4}-\d{2}-\d{2}$)` {
					t.Errorf("expected pattern folded into description, got %q", dateProp.Description)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertMCPToolsToOllama(tt.input)

			if len(result) != tt.expected {
				t.Fatalf("expected %d tools, got %d", tt.expected, len(result))
			}
			if tt.validate != nil {
				tt.validate(t, result)
			}
		})
	}
}

func TestConvertPropertyValue(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		validate func(t *testing.T, result api.ToolProperty)
	}{
		{
			name: "string type",
			input: map[string]any{
				"type":        "string",
				"description": "Category name",
			},
			validate: func(t *testing.T, result api.ToolProperty) {
				if len(result.Type) != 1 || result.Type[0] != "string" {
					t.Errorf("expected type [string], got %v", result.Type)
				}
				if result.Description != "Category name" {
					t.Errorf("description mismatch")
				}
			},
		},
		{
			name: "array type property",
			input: map[string]any{
				"type": []any{"string", "null"},
			},
			validate: func(t *testing.T, result api.ToolProperty) {
				if len(result.Type) != 2 {
					t.Errorf("expected 2 types, got %d", len(result.Type))
				}
			},
		},
		{
			name: "enum decoded from JSON",
			input: map[string]any{
				"type": "string",
				"enum": []any{"week", "month", "year"},
			},
			validate: func(t *testing.T, result api.ToolProperty) {
				if len(result.Enum) != 3 {
					t.Errorf("expected 3 enum values, got %d", len(result.Enum))
				}
			},
		},
		{
			name: "enum from builder",
			input: map[string]any{
				"type": "string",
				"enum": []string{"expense", "income"},
			},
			validate: func(t *testing.T, result api.ToolProperty) {
				if len(result.Enum) != 2 || result.Enum[0] != "expense" {
					t.Errorf("unexpected enum %v", result.Enum)
				}
			},
		},
		{
			name: "property with anyOf",
			input: map[string]any{
				"anyOf": []any{
					map[string]any{"type": "string"},
					map[string]any{"type": "number"},
				},
			},
			validate: func(t *testing.T, result api.ToolProperty) {
				if len(result.AnyOf) != 2 {
					t.Errorf("expected 2 anyOf options, got %d", len(result.AnyOf))
				}
			},
		},
		{
			name: "struct value goes through JSON",
			input: struct {
				Type string `json:"type"`
			}{Type: "number"},
			validate: func(t *testing.T, result api.ToolProperty) {
				if len(result.Type) != 1 || result.Type[0] != "number" {
					t.Errorf("expected type [number], got %v", result.Type)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := convertPropertyValue(tt.input)
			if tt.validate != nil {
				tt.validate(t, result)
			}
		})
	}
}

func TestConvertMCPToolsToOpenAIFormat(t *testing.T) {
	if got := ConvertMCPToolsToOpenAIFormat(nil); got != nil {
		t.Errorf("expected nil for no tools, got %v", got)
	}

	result := ConvertMCPToolsToOpenAIFormat([]mcptypes.Tool{createTransactionTool()})
	if len(result) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(result))
	}

	fn := result[0].OfFunction
	if fn == nil {
		t.Fatal("expected a function tool")
	}
	if fn.Function.Name != "create_transaction" {
		t.Errorf("name mismatch: %q", fn.Function.Name)
	}
	if fn.Function.Parameters["type"] != "object" {
		t.Errorf("expected object schema, got %v", fn.Function.Parameters["type"])
	}
	required, ok := fn.Function.Parameters["required"].([]string)
	if !ok || len(required) != 2 {
		t.Errorf("expected 2 required fields, got %v", fn.Function.Parameters["required"])
	}
}

func TestConvertMCPToolsToAnthropicFormat(t *testing.T) {
	if got := ConvertMCPToolsToAnthropicFormat(nil); got != nil {
		t.Errorf("expected nil for no tools, got %v", got)
	}

	result := ConvertMCPToolsToAnthropicFormat([]mcptypes.Tool{createTransactionTool()})
	if len(result) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(result))
	}

	tool := result[0].OfTool
	if tool == nil {
		t.Fatal("expected a custom tool")
	}
	if tool.Name != "create_transaction" {
		t.Errorf("name mismatch: %q", tool.Name)
	}
	if len(tool.InputSchema.Required) != 2 {
		t.Errorf("expected 2 required fields, got %d", len(tool.InputSchema.Required))
	}
}
