package provider

import (
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// buildOpenAIToolInstructions: GPT models follow short, direct guidance.
func buildOpenAIToolInstructions(tools []mcptypes.Tool) string {
	return strings.Join([]string{
		"TOOLS: " + strings.Join(toolNames(tools), ", "),
		"",
		"Any figure about the user's money (transactions, balances, budgets, goals) must come from a tool.",
		"When a request needs a tool:",
		"1. Pick the single tool that answers it",
		"2. If every required parameter is known, call it immediately",
		"3. If a required parameter is missing, ask only for that parameter",
		"",
		"DO NOT:",
		"- Invent amounts, dates or categories",
		"- Describe the call before making it",
		"- Call more than one tool per reply",
	}, "\n")
}

// buildOpenRouterToolInstructions is more explicit: OpenRouter fronts many
// smaller models that otherwise print the call as text.
func buildOpenRouterToolInstructions(tools []mcptypes.Tool) string {
	lines := []string{
		"You can call these tools through the function-calling API:",
	}
	for _, tool := range tools {
		lines = append(lines, "- "+tool.Name+": "+tool.Description)
	}
	lines = append(lines,
		"",
		"Rules:",
		"- Use the function-calling mechanism. Never write a tool call as JSON or XML in your reply.",
		"- Call at most one tool per reply.",
		"- Never make up financial data; fetch it with a tool.",
		"- Dates are YYYY-MM-DD. Amounts are positive numbers.",
	)
	return strings.Join(lines, "\n")
}

func toolNames(tools []mcptypes.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}
