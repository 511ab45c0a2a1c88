package mcp

import (
	"context"

	"finassist/config"
	"finassist/model"
	"finassist/tools"

	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server exposes the finance tools to MCP clients on behalf of one user.
type Server struct {
	mcp      *server.MCPServer
	executor *tools.Executor
	userID   string
}

func NewServer(executor *tools.Executor, userID, version string) *Server {
	s := &Server{
		mcp: server.NewMCPServer("finassist", version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		executor: executor,
		userID:   userID,
	}

	for _, tool := range executor.Registry().List() {
		s.mcp.AddTool(tool, s.handleCall)
	}
	config.Debugf("[MCP] Serving %d tool(s) for user %s", len(executor.Registry().List()), userID)
	return s
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks serving JSON-RPC on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// handleCall runs the tool through the executor. Failures are reported as
// error results carrying the same JSON envelope the chat model sees.
func (s *Server) handleCall(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
	call := model.ToolCall{
		ID:        "mcp_" + uuid.New().String(),
		Name:      req.Params.Name,
		Arguments: req.GetArguments(),
	}
	result := s.executor.Execute(ctx, call, tools.Scope{UserID: s.userID})
	if !result.Success {
		return mcptypes.NewToolResultError(result.JSON()), nil
	}
	return mcptypes.NewToolResultText(result.JSON()), nil
}
