package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finassist/chat"
	"finassist/model"
	"finassist/orchestrator"
	"finassist/provider"
	"finassist/provider/testutil"
	"finassist/speech"
	"finassist/storage"
	"finassist/tools"
)

type testEnv struct {
	server   *Server
	mock     *testutil.MockProvider
	sessions *chat.Manager
	archive  *storage.Archive
	store    *storage.Store
}

func newTestEnv(t *testing.T, replies ...testutil.Reply) *testEnv {
	t.Helper()

	mock := testutil.NewMockProvider("test-model")
	if len(replies) > 0 {
		mock.Script(replies...)
	}

	registry, err := tools.NewFinanceRegistry(tools.FinanceOptions{Currency: "EUR"})
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "finance.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	archive, err := storage.NewArchive(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	orch := orchestrator.New(mock, registry)
	executor := tools.NewExecutor(registry, store)
	sessions := chat.NewManager(orch, executor, chat.WithSessionOptions(chat.WithArchive(archive)))

	server := NewServer(Options{
		Orchestrator:  orch,
		Executor:      executor,
		Sessions:      sessions,
		Archive:       archive,
		Ledgers:       store,
		Recognizer:    func() speech.Recognizer { return echoRecognizer{} },
		MaxToolRounds: 1,
	})
	return &testEnv{server: server, mock: mock, sessions: sessions, archive: archive, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.server.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: invalid JSON %q", method, path, raw)
		}
	}
	return resp.StatusCode, out
}

func userMessage(text string) map[string]any {
	return map[string]any{"role": "user", "content": text}
}

func TestChat_RequiresUser(t *testing.T) {
	env := newTestEnv(t, testutil.TextReply("hola"))

	status, body := env.do(t, http.MethodPost, "/api/chat", map[string]any{
		"messages": []any{userMessage("Hola")},
	})
	if status != http.StatusUnauthorized || body["code"] != "Unauthenticated" {
		t.Errorf("got %d %v", status, body)
	}
	if len(env.mock.Calls()) != 0 {
		t.Error("backend must not be called without a user")
	}
}

func TestChat_DirectAnswer(t *testing.T) {
	env := newTestEnv(t, testutil.TextReply("**Hola**, ¿en qué te ayudo?"))

	status, body := env.do(t, http.MethodPost, "/api/chat", map[string]any{
		"userId":   "ana",
		"messages": []any{userMessage("Hola")},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if body["needsFunctionCall"] != false {
		t.Errorf("needsFunctionCall = %v", body["needsFunctionCall"])
	}

	msg := body["message"].(map[string]any)
	if msg["role"] != "assistant" || msg["content"] != "**Hola**, ¿en qué te ayudo?" {
		t.Errorf("unexpected message %v", msg)
	}
	if html, _ := msg["html"].(string); !strings.Contains(html, "<strong>Hola</strong>") {
		t.Errorf("html = %q", html)
	}
}

func TestChat_StatelessToolRoundTrip(t *testing.T) {
	env := newTestEnv(t,
		testutil.ToolCallReply(testutil.ToolCall("call_1", "analyze_spending", map[string]any{"period": "month"})),
		testutil.TextReply("No tienes gastos registrados este mes."),
	)

	history := []any{userMessage("¿En qué gasto más?")}
	status, body := env.do(t, http.MethodPost, "/api/chat", map[string]any{"userId": "ana", "messages": history})
	if status != http.StatusOK || body["needsFunctionCall"] != true {
		t.Fatalf("round 1: got %d %v", status, body)
	}
	call := body["functionCall"].(map[string]any)
	if call["name"] != "analyze_spending" || call["id"] != "call_1" {
		t.Fatalf("unexpected functionCall %v", call)
	}

	status, result := env.do(t, http.MethodPost, "/api/functions/execute", map[string]any{
		"userId":    "ana",
		"name":      call["name"],
		"arguments": call["arguments"],
		"callId":    call["id"],
	})
	if status != http.StatusOK || result["success"] != true || result["toolName"] != "analyze_spending" {
		t.Fatalf("execute: got %d %v", status, result)
	}
	data := result["data"].(map[string]any)
	if data["totalSpent"] != 0.0 || data["transactionCount"] != 0.0 {
		t.Errorf("unexpected analysis %v", data)
	}
	resultJSON, _ := json.Marshal(result)

	history = append(history,
		map[string]any{"role": "assistant", "content": "", "functionCall": map[string]any{"name": call["name"], "arguments": call["arguments"]}},
		map[string]any{"role": "tool", "name": call["name"], "content": string(resultJSON)},
	)
	status, body = env.do(t, http.MethodPost, "/api/chat", map[string]any{"userId": "ana", "messages": history})
	if status != http.StatusOK || body["needsFunctionCall"] != false {
		t.Fatalf("round 2: got %d %v", status, body)
	}
	if msg := body["message"].(map[string]any); msg["content"] != "No tienes gastos registrados este mes." {
		t.Errorf("unexpected final message %v", msg)
	}

	sent := env.mock.Calls()[1].Messages
	last := sent[len(sent)-1]
	prev := sent[len(sent)-2]
	if last.Role != "tool" || prev.ToolCall == nil || last.ToolCallID != prev.ToolCall.ID || last.ToolCallID == "" {
		t.Errorf("tool result not paired with its call: %+v / %+v", prev, last)
	}
}

func TestChat_RoundTwoToolRequestIsFinal(t *testing.T) {
	call := testutil.ToolCall("call_2", "get_savings_goals", map[string]any{})
	env := newTestEnv(t, testutil.Reply{Text: "Ahora reviso tus metas.", ToolCall: &call})

	status, body := env.do(t, http.MethodPost, "/api/chat", map[string]any{
		"userId": "ana",
		"messages": []any{
			userMessage("Resumen"),
			map[string]any{"role": "assistant", "functionCall": map[string]any{"id": "call_1", "name": "get_budget_summary", "arguments": map[string]any{}}},
			map[string]any{"role": "tool", "name": "get_budget_summary", "content": `{"toolName":"get_budget_summary","success":true}`},
		},
	})
	if status != http.StatusOK || body["needsFunctionCall"] != false || body["functionCall"] != nil {
		t.Fatalf("got %d %v", status, body)
	}
	if msg := body["message"].(map[string]any); msg["content"] != "Ahora reviso tus metas." || msg["functionCall"] != nil {
		t.Errorf("unexpected message %v", msg)
	}
}

func TestChat_ReplayingFinishedTurnWritesNothing(t *testing.T) {
	// The backend asks for the same write again; the turn already used its round.
	again := testutil.ToolCall("call_1", "create_transaction", map[string]any{
		"type": "expense", "amount": 45.5, "category": "Alimentación", "description": "Almuerzo",
	})
	env := newTestEnv(t, testutil.Reply{Text: "Ya lo tenía registrado.", ToolCall: &again})

	args := map[string]any{"type": "expense", "amount": 45.5, "category": "Alimentación", "description": "Almuerzo"}
	status, result := env.do(t, http.MethodPost, "/api/functions/execute", map[string]any{
		"userId": "ana", "name": "create_transaction", "callId": "call_1", "arguments": args,
	})
	if status != http.StatusOK || result["success"] != true {
		t.Fatalf("execute: got %d %v", status, result)
	}
	resultJSON, _ := json.Marshal(result)

	countTransactions := func() int {
		t.Helper()
		ledger, err := env.store.ForUser("ana")
		if err != nil {
			t.Fatal(err)
		}
		txs, err := ledger.ListTransactions(context.Background(), storage.TransactionFilter{})
		if err != nil {
			t.Fatal(err)
		}
		return len(txs)
	}
	before := countTransactions()

	history := []any{
		userMessage("Gasté 45,50 en el almuerzo"),
		map[string]any{"role": "assistant", "functionCall": map[string]any{"id": "call_1", "name": "create_transaction", "arguments": args}},
		map[string]any{"role": "tool", "name": "create_transaction", "toolCallId": "call_1", "content": string(resultJSON)},
		map[string]any{"role": "assistant", "content": "Listo, he registrado 45,50 € en Alimentación."},
	}
	for i := 0; i < 2; i++ {
		status, body := env.do(t, http.MethodPost, "/api/chat", map[string]any{"userId": "ana", "messages": history})
		if status != http.StatusOK || body["needsFunctionCall"] != false || body["functionCall"] != nil {
			t.Fatalf("replay %d: got %d %v", i, status, body)
		}
	}

	if after := countTransactions(); after != before || before != 1 {
		t.Errorf("replaying a finished turn changed the ledger: %d -> %d", before, after)
	}
}

func TestChat_BackendErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"unavailable", &provider.APIError{Provider: "openai", StatusCode: 503}, true},
		{"rate limited", &provider.APIError{Provider: "openai", StatusCode: 429}, true},
		{"rejected key", &provider.APIError{Provider: "openai", StatusCode: 401}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testutil.ErrorReply(tt.err))
			status, body := env.do(t, http.MethodPost, "/api/chat", map[string]any{
				"userId":   "ana",
				"messages": []any{userMessage("Hola")},
			})
			if status != http.StatusBadGateway || body["code"] != "ModelUnavailable" {
				t.Fatalf("got %d %v", status, body)
			}
			if body["retryable"] != tt.retryable {
				t.Errorf("retryable = %v, want %v", body["retryable"], tt.retryable)
			}
			if body["error"] == "" {
				t.Error("error message missing")
			}
		})
	}
}

func TestExecute(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "create transaction",
			body:       map[string]any{"userId": "ana", "name": "create_transaction", "callId": "c1", "arguments": map[string]any{"type": "expense", "amount": 45.5, "category": "Alimentación", "description": "Almuerzo"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing user",
			body:       map[string]any{"name": "get_budget_summary", "arguments": map[string]any{}},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "Unauthenticated",
		},
		{
			name:       "unknown tool",
			body:       map[string]any{"userId": "ana", "name": "delete_account", "arguments": map[string]any{}},
			wantStatus: http.StatusOK,
			wantCode:   "ToolNotFound",
		},
		{
			name:       "invalid arguments",
			body:       map[string]any{"userId": "ana", "name": "create_transaction", "arguments": map[string]any{"type": "expense", "amount": -3, "category": "Otros", "description": "x"}},
			wantStatus: http.StatusOK,
			wantCode:   "InvalidArguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/api/functions/execute", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, body %v", status, body)
			}
			if tt.wantCode == "" {
				if body["success"] != true {
					t.Errorf("expected success, got %v", body)
				}
				return
			}
			failure, _ := body["error"].(map[string]any)
			if body["success"] != false || failure["code"] != tt.wantCode {
				t.Errorf("expected %s, got %v", tt.wantCode, body)
			}
		})
	}
}

func TestListTools(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodGet, "/api/tools", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	list := body["tools"].([]any)
	names := make([]string, len(list))
	for i, item := range list {
		names[i] = item.(map[string]any)["name"].(string)
	}
	want := "get_transactions,create_transaction,get_budget_summary,get_savings_goals,analyze_spending"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("tools = %s", got)
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	env := newTestEnv(t, testutil.TextReply("Hola Ana, ¿qué quieres revisar?"))

	status, created := env.do(t, http.MethodPost, "/api/sessions", map[string]any{"userId": "ana"})
	if status != http.StatusCreated {
		t.Fatalf("create: %d %v", status, created)
	}
	id := created["id"].(string)

	status, turn := env.do(t, http.MethodPost, "/api/sessions/"+id+"/messages", map[string]any{"userId": "ana", "content": "Hola"})
	if status != http.StatusOK {
		t.Fatalf("submit: %d %v", status, turn)
	}
	if reply := turn["reply"].(map[string]any); reply["content"] != "Hola Ana, ¿qué quieres revisar?" {
		t.Errorf("unexpected reply %v", reply)
	}

	status, view := env.do(t, http.MethodGet, "/api/sessions/"+id+"/messages?userId=ana", nil)
	if status != http.StatusOK || len(view["messages"].([]any)) != 2 || view["state"] != "awaiting_input" {
		t.Errorf("messages: %d %v", status, view)
	}

	if status, _ := env.do(t, http.MethodGet, "/api/sessions/"+id+"/messages?userId=luis", nil); status != http.StatusNotFound {
		t.Errorf("other users must not read the session, got %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/api/sessions/"+id+"/messages", map[string]any{"userId": "ana", "content": "  "}); status != http.StatusBadRequest {
		t.Errorf("empty message: got %d", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/api/sessions/"+id+"/resume", map[string]any{"userId": "ana"}); status != http.StatusConflict {
		t.Errorf("resume without pending turn: got %d", status)
	}

	if status, _ := env.do(t, http.MethodDelete, "/api/sessions/"+id+"?userId=ana", nil); status != http.StatusNoContent {
		t.Fatalf("delete: got %d", status)
	}

	status, list := env.do(t, http.MethodGet, "/api/conversations?userId=ana", nil)
	if status != http.StatusOK || len(list["conversations"].([]any)) != 1 {
		t.Fatalf("conversations: %d %v", status, list)
	}

	status, found := env.do(t, http.MethodGet, "/api/conversations?userId=ana&q=revisar", nil)
	if status != http.StatusOK || len(found["matches"].([]any)) != 1 {
		t.Errorf("search: %d %v", status, found)
	}

	status, conv := env.do(t, http.MethodGet, "/api/conversations/"+id+"?userId=ana", nil)
	if status != http.StatusOK || len(conv["messages"].([]any)) != 2 {
		t.Errorf("conversation: %d %v", status, conv)
	}
	if status, _ := env.do(t, http.MethodGet, "/api/conversations/"+id+"?userId=luis", nil); status != http.StatusNotFound {
		t.Errorf("other users must not read the archive, got %d", status)
	}

	if status, _ := env.do(t, http.MethodDelete, "/api/conversations/"+id+"?userId=luis", nil); status != http.StatusNotFound {
		t.Errorf("other users must not delete the archive, got %d", status)
	}
	if status, _ := env.do(t, http.MethodDelete, "/api/conversations/"+id+"?userId=ana", nil); status != http.StatusNoContent {
		t.Fatalf("delete conversation: got %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/api/conversations/"+id+"?userId=ana", nil); status != http.StatusNotFound {
		t.Errorf("deleted conversation still readable, got %d", status)
	}
}

func TestGoals(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{"active goal", map[string]any{"userId": "ana", "name": "Viaje a Japón", "targetAmount": 3000, "currentAmount": 750, "deadline": "2026-12-01"}, http.StatusCreated, ""},
		{"reached goal", map[string]any{"userId": "ana", "name": "Portátil", "targetAmount": 900, "currentAmount": 900}, http.StatusCreated, ""},
		{"missing user", map[string]any{"name": "Coche", "targetAmount": 5000}, http.StatusUnauthorized, "Unauthenticated"},
		{"no target", map[string]any{"userId": "ana", "name": "Coche"}, http.StatusBadRequest, "InvalidGoal"},
		{"bad deadline", map[string]any{"userId": "ana", "name": "Coche", "targetAmount": 5000, "deadline": "diciembre"}, http.StatusBadRequest, "InvalidGoal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/api/goals", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, body %v", status, body)
			}
			if tt.wantCode != "" && body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
		})
	}

	status, all := env.do(t, http.MethodGet, "/api/goals?userId=ana", nil)
	if status != http.StatusOK || all["count"] != 2.0 {
		t.Errorf("list: %d %v", status, all)
	}
	if _, other := env.do(t, http.MethodGet, "/api/goals?userId=luis", nil); other["count"] != 0.0 {
		t.Errorf("goals leaked across users: %v", other)
	}

	// The assistant's tool only reports the goal still in progress.
	status, result := env.do(t, http.MethodPost, "/api/functions/execute", map[string]any{
		"userId": "ana", "name": "get_savings_goals", "arguments": map[string]any{},
	})
	data, _ := result["data"].(map[string]any)
	if status != http.StatusOK || data["count"] != 1.0 {
		t.Errorf("get_savings_goals: %d %v", status, result)
	}
}

func TestSessions_BusyReturnsConflict(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, testutil.Reply{Text: "Listo", Block: release})

	session, err := env.sessions.Create("ana")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan int, 1)
	go func() {
		status, _ := env.do(t, http.MethodPost, "/api/sessions/"+session.ID()+"/messages", map[string]any{"userId": "ana", "content": "uno"})
		done <- status
	}()

	deadline := time.Now().Add(2 * time.Second)
	for session.State() != chat.Round1Pending {
		if time.Now().After(deadline) {
			t.Fatal("first message never started")
		}
		time.Sleep(time.Millisecond)
	}

	status, body := env.do(t, http.MethodPost, "/api/sessions/"+session.ID()+"/messages", map[string]any{"userId": "ana", "content": "dos"})
	if status != http.StatusConflict || body["retryable"] != true {
		t.Errorf("got %d %v", status, body)
	}

	close(release)
	if status := <-done; status != http.StatusOK {
		t.Errorf("first message: got %d", status)
	}
}

func TestSessions_RequireUser(t *testing.T) {
	env := newTestEnv(t)
	if status, _ := env.do(t, http.MethodPost, "/api/sessions", map[string]any{}); status != http.StatusUnauthorized {
		t.Errorf("create without user: got %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/api/sessions", nil); status != http.StatusUnauthorized {
		t.Errorf("list without user: got %d", status)
	}
	if status, _ := env.do(t, http.MethodGet, "/api/conversations", nil); status != http.StatusUnauthorized {
		t.Errorf("conversations without user: got %d", status)
	}
}

func TestPairToolMessages(t *testing.T) {
	history := pairToolMessages([]model.Message{
		{Role: "user", Content: "hola"},
		{Role: "assistant", ToolCall: &model.ToolCall{Name: "get_budget_summary", Arguments: map[string]any{}}},
		{Role: "tool", Content: "{}"},
	})

	call := history[1].ToolCall
	if call.ID == "" {
		t.Fatal("missing call ID should be generated")
	}
	if history[2].ToolCallID != call.ID || history[2].ToolName != "get_budget_summary" {
		t.Errorf("tool message not paired: %+v", history[2])
	}
}

func TestRenderHTMLEscapesRawHTML(t *testing.T) {
	out := renderHTML("Total: **45,50 €** <script>alert(1)</script>")
	if !strings.Contains(out, "<strong>45,50 €</strong>") || strings.Contains(out, "<script>") {
		t.Errorf("renderHTML() = %q", out)
	}
}
