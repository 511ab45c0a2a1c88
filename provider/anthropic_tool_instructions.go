package provider

import (
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// buildAnthropicToolInstructions creates minimal tool instructions for Claude models.
func buildAnthropicToolInstructions(tools []mcptypes.Tool) string {
	return strings.Join([]string{
		"TOOLS: " + strings.Join(toolNames(tools), ", "),
		"",
		"Answer questions about the user's finances only with data returned by these tools.",
		"If all required parameters are known, use the tool right away without announcing it.",
		"If one is missing, ask for it in a single short question.",
		"Use at most one tool per turn.",
	}, "\n")
}
