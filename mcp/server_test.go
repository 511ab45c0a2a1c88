package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"finassist/storage"
	"finassist/tools"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

func newTestClient(t *testing.T, userID string) (*client.Client, *storage.Store) {
	t.Helper()

	registry, err := tools.NewFinanceRegistry(tools.FinanceOptions{Currency: "EUR"})
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "finance.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	srv := NewServer(tools.NewExecutor(registry, store), userID, "test")
	c, err := client.NewInProcessClient(srv.MCPServer())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	_, err = c.Initialize(ctx, mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: mcptypes.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcptypes.Implementation{Name: "test", Version: "1.0.0"},
		},
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return c, store
}

func resultEnvelope(t *testing.T, res *mcptypes.CallToolResult) tools.Result {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content block, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(mcptypes.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	var out tools.Result
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("content is not a result envelope: %q", text.Text)
	}
	return out
}

func TestServer_ListTools(t *testing.T) {
	c, _ := newTestClient(t, "ana")

	res, err := c.ListTools(context.Background(), mcptypes.ListToolsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tools) != 5 {
		t.Fatalf("expected 5 tools, got %d", len(res.Tools))
	}

	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"get_transactions", "create_transaction", "get_budget_summary", "get_savings_goals", "analyze_spending"} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}
}

func TestServer_CallTool(t *testing.T) {
	c, store := newTestClient(t, "ana")
	ctx := context.Background()

	tests := []struct {
		name      string
		tool      string
		args      map[string]any
		wantError bool
		wantCode  tools.ErrorCode
	}{
		{
			name: "create transaction",
			tool: "create_transaction",
			args: map[string]any{"type": "expense", "amount": 12.3, "category": "Transporte", "description": "Metro"},
		},
		{
			name:      "invalid arguments",
			tool:      "create_transaction",
			args:      map[string]any{"type": "expense"},
			wantError: true,
			wantCode:  tools.CodeInvalidArguments,
		},
		{
			name: "budget summary",
			tool: "get_budget_summary",
			args: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.CallTool(ctx, mcptypes.CallToolRequest{
				Params: mcptypes.CallToolParams{Name: tt.tool, Arguments: tt.args},
			})
			if err != nil {
				t.Fatalf("CallTool() error = %v", err)
			}
			if res.IsError != tt.wantError {
				t.Errorf("IsError = %v, want %v", res.IsError, tt.wantError)
			}

			envelope := resultEnvelope(t, res)
			if envelope.ToolName != tt.tool || envelope.Success == tt.wantError {
				t.Errorf("unexpected envelope %+v", envelope)
			}
			if tt.wantError && (envelope.Error == nil || envelope.Error.Code != tt.wantCode) {
				t.Errorf("expected %s, got %+v", tt.wantCode, envelope.Error)
			}
		})
	}

	ledger, _ := store.ForUser("ana")
	txs, err := ledger.ListTransactions(ctx, storage.TransactionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].Description != "Metro" {
		t.Errorf("unexpected ledger %+v", txs)
	}
}

func TestServer_WithoutUser(t *testing.T) {
	c, _ := newTestClient(t, "")

	res, err := c.CallTool(context.Background(), mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{Name: "get_savings_goals", Arguments: map[string]any{}},
	})
	if err != nil {
		t.Fatal(err)
	}
	envelope := resultEnvelope(t, res)
	if !res.IsError || envelope.Error == nil || envelope.Error.Code != tools.CodeUnauthenticated {
		t.Errorf("expected Unauthenticated, got %+v", envelope)
	}
}
