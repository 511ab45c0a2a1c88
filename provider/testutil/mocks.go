package testutil

import (
	"context"
	"finassist/model"
	"finassist/ollama"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// MockCall records one request made to a MockProvider.
type MockCall struct {
	Messages []model.Message
	Tools    []mcptypes.Tool
}

// MockProvider implements model.Provider for tests. Override the ...Func
// fields to script responses; every chat request is recorded in Calls.
type MockProvider struct {
	ChatFunc          func(ctx context.Context, messages []model.Message, callback model.StreamCallback) error
	ChatWithToolsFunc func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error
	ListModelsFunc    func(ctx context.Context) ([]ollama.ModelInfo, error)
	PingFunc          func(ctx context.Context) error

	mu           sync.Mutex
	calls        []MockCall
	currentModel string
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{
		currentModel: modelName,
	}
	mock.ChatFunc = mock.defaultChat
	mock.ChatWithToolsFunc = mock.defaultChatWithTools
	mock.ListModelsFunc = mock.defaultListModels
	mock.PingFunc = mock.defaultPing
	return mock
}

func (m *MockProvider) defaultChat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	if len(messages) > 0 {
		return callback("Mock response", nil)
	}
	return nil
}

func (m *MockProvider) defaultChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	return callback("Mock response with tools", nil)
}

func (m *MockProvider) defaultListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return []ollama.ModelInfo{
		{Name: "mock-model-1", Size: 1000},
		{Name: "mock-model-2", Size: 2000},
	}, nil
}

func (m *MockProvider) defaultPing(ctx context.Context) error {
	return nil
}

func (m *MockProvider) record(messages []model.Message, tools []mcptypes.Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Messages: append([]model.Message(nil), messages...),
		Tools:    tools,
	})
}

// Calls returns the recorded requests in order.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

func (m *MockProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	m.record(messages, nil)
	return m.ChatFunc(ctx, messages, callback)
}

func (m *MockProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	m.record(messages, tools)
	return m.ChatWithToolsFunc(ctx, messages, tools, callback)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentModel
}

// GetDisplayName returns the same value as GetModel.
func (m *MockProvider) GetDisplayName() string {
	return m.GetModel()
}

func (m *MockProvider) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentModel = model
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}

// Script makes the provider answer successive ChatWithTools requests with
// the given replies in order; the last reply repeats once the script runs out.
func (m *MockProvider) Script(replies ...Reply) {
	var (
		mu   sync.Mutex
		next int
	)
	m.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
		mu.Lock()
		r := replies[len(replies)-1]
		if next < len(replies) {
			r = replies[next]
			next++
		}
		mu.Unlock()
		return r.play(ctx, callback)
	}
	m.ChatFunc = func(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
		return m.ChatWithToolsFunc(ctx, messages, nil, callback)
	}
}

// Reply is one scripted backend response.
type Reply struct {
	Text     string
	ToolCall *model.ToolCall
	Err      error
	// Block, when set, holds the reply until it is closed or ctx ends.
	Block chan struct{}
}

func (r Reply) play(ctx context.Context, callback model.StreamCallback) error {
	if r.Block != nil {
		select {
		case <-r.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.Err != nil {
		return r.Err
	}
	if r.Text != "" {
		if err := callback(r.Text, nil); err != nil {
			return err
		}
	}
	if r.ToolCall != nil {
		return callback("", []model.ToolCall{*r.ToolCall})
	}
	return nil
}

func TextReply(text string) Reply {
	return Reply{Text: text}
}

func ToolCallReply(call model.ToolCall) Reply {
	return Reply{ToolCall: &call}
}

func ErrorReply(err error) Reply {
	return Reply{Err: err}
}
