package provider

import "testing"

func TestParseLeakedJSONToolCalls(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantName string
		wantRaw  string
		wantN    int
	}{
		{
			name:     "bare object",
			content:  `{"name": "get_budget_summary", "arguments": {}}`,
			wantName: "get_budget_summary",
			wantRaw:  "{}",
			wantN:    1,
		},
		{
			name:     "fenced block with prose",
			content:  "Voy a consultarlo:\n```json\n{\"name\": \"analyze_spending\", \"arguments\": {\"period\": \"month\"}}\n```",
			wantName: "analyze_spending",
			wantRaw:  `{"period": "month"}`,
			wantN:    1,
		},
		{
			name:     "tool/parameters spelling",
			content:  `{"tool": "get_transactions", "parameters": {"type": "expense"}}`,
			wantName: "get_transactions",
			wantRaw:  `{"type": "expense"}`,
			wantN:    1,
		},
		{
			name:     "double encoded arguments",
			content:  `{"name": "create_transaction", "arguments": "{\"amount\": 5}"}`,
			wantName: "create_transaction",
			wantRaw:  `{"amount": 5}`,
			wantN:    1,
		},
		{
			name:    "ordinary answer",
			content: "Este mes has gastado 300 €.",
			wantN:   0,
		},
		{
			name:    "json without name",
			content: `{"total": 300}`,
			wantN:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := ParseLeakedJSONToolCalls(tt.content)
			if len(calls) != tt.wantN {
				t.Fatalf("expected %d calls, got %d (%+v)", tt.wantN, len(calls), calls)
			}
			if tt.wantN == 0 {
				return
			}
			if calls[0].Name != tt.wantName {
				t.Errorf("name: got %q, want %q", calls[0].Name, tt.wantName)
			}
			if calls[0].RawArguments != tt.wantRaw {
				t.Errorf("raw arguments: got %q, want %q", calls[0].RawArguments, tt.wantRaw)
			}
			if calls[0].ID == "" {
				t.Error("expected generated call ID")
			}
		})
	}
}

func TestParseLeakedXMLToolCalls(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantName string
		wantN    int
	}{
		{
			name:     "tool_call tag",
			content:  "<tool_call>\n{\"name\": \"get_savings_goals\", \"arguments\": {}}\n</tool_call>",
			wantName: "get_savings_goals",
			wantN:    1,
		},
		{
			name:     "function tag",
			content:  `<function=analyze_spending>{"period": "year"}</function>`,
			wantName: "analyze_spending",
			wantN:    1,
		},
		{
			name:    "no markup",
			content: "Todo en orden.",
			wantN:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := ParseLeakedXMLToolCalls(tt.content)
			if len(calls) != tt.wantN {
				t.Fatalf("expected %d calls, got %d", tt.wantN, len(calls))
			}
			if tt.wantN > 0 && calls[0].Name != tt.wantName {
				t.Errorf("name: got %q, want %q", calls[0].Name, tt.wantName)
			}
		})
	}
}

func TestRecoverLeakedToolCalls_PrefersJSON(t *testing.T) {
	calls := recoverLeakedToolCalls(`{"name": "get_budget_summary", "arguments": {}}`)
	if len(calls) != 1 || calls[0].Name != "get_budget_summary" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if calls := recoverLeakedToolCalls(""); len(calls) != 0 {
		t.Errorf("expected nothing from empty content, got %+v", calls)
	}
}
