// Package orchestrator runs one model round trip for a conversation: it
// sends the history and the tool catalog to the backend and returns either
// a direct answer or the single tool call the model asked for. It never
// executes tools itself.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finassist/config"
	"finassist/model"

	"github.com/mark3labs/mcp-go/mcp"
)

// FallbackReply is used when the model ends a turn without any text.
const FallbackReply = "Lo siento, no he podido generar una respuesta. ¿Puedes reformular la pregunta?"

// ToolCatalog is the source of tool definitions sent with each request.
type ToolCatalog interface {
	List() []mcp.Tool
}

// Reply is the outcome of one round trip. ToolCall is set when the model
// requested a tool; Message then is the assistant's tool-call message.
type Reply struct {
	Message  model.Message
	ToolCall *model.ToolCall
}

func (r *Reply) NeedsToolCall() bool {
	return r.ToolCall != nil
}

// Final turns the reply into a plain assistant message. A pending tool call
// is dropped, which is how a tool request past the round limit is surfaced.
func (r *Reply) Final() model.Message {
	msg := r.Message
	msg.Role = model.RoleAssistant
	msg.ToolCall = nil
	msg.ToolCallID = ""
	if strings.TrimSpace(msg.Content) == "" {
		msg.Content = FallbackReply
	}
	return msg
}

// Orchestrator is safe for concurrent use; it holds no per-conversation state.
type Orchestrator struct {
	provider     model.Provider
	tools        []mcp.Tool
	toolsEnabled bool
	persona      string
	currency     string
	now          func() time.Time
}

type Option func(*Orchestrator)

// WithToolsEnabled turns tool calling on or off for the orchestrator's lifetime.
func WithToolsEnabled(enabled bool) Option {
	return func(o *Orchestrator) {
		o.toolsEnabled = enabled
	}
}

// WithSystemPrompt replaces the built-in persona. Date and currency are still appended.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) {
		o.persona = prompt
	}
}

func WithCurrency(currency string) Option {
	return func(o *Orchestrator) {
		if currency != "" {
			o.currency = currency
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New builds an orchestrator around p. The catalog is read once here.
func New(p model.Provider, catalog ToolCatalog, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:     p,
		toolsEnabled: true,
		currency:     "EUR",
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if catalog == nil {
		o.toolsEnabled = false
	}
	if o.toolsEnabled {
		o.tools = catalog.List()
	}
	return o
}

func (o *Orchestrator) ToolsEnabled() bool {
	return o.toolsEnabled
}

// Model returns the backend model name in use.
func (o *Orchestrator) Model() string {
	return o.provider.GetModel()
}

// Converse runs one round trip over history.
//
// Backend failures are returned as *UnavailableError and are not retried.
// A malformed tool call is logged and the turn is asked again once without
// tools, so the caller gets a direct answer instead.
func (o *Orchestrator) Converse(ctx context.Context, history []model.Message) (*Reply, error) {
	messages := o.prepare(history)

	text, call, err := o.roundTrip(ctx, messages, o.tools)
	if err != nil {
		return nil, err
	}

	if call != nil {
		protoErr := checkToolCall(*call)
		if protoErr == nil {
			config.Debugf("[Orchestrator] Model requested tool %s (id %s)", call.Name, call.ID)
			msg := model.NewToolCallMessage(text, *call)
			return &Reply{Message: msg, ToolCall: msg.ToolCall}, nil
		}

		config.Debugf("[Orchestrator] %v; retrying without tools", protoErr)
		text, _, err = o.roundTrip(ctx, messages, nil)
		if err != nil {
			return nil, err
		}
	}

	reply := &Reply{Message: model.NewAssistantMessage(text)}
	reply.Message = reply.Final()
	return reply, nil
}

// prepare prepends the system instruction. System messages supplied by the
// caller are dropped so clients cannot replace the persona.
func (o *Orchestrator) prepare(history []model.Message) []model.Message {
	messages := make([]model.Message, 0, len(history)+1)
	messages = append(messages, model.Message{
		Role:      model.RoleSystem,
		Content:   buildSystemPrompt(o.persona, o.currency, o.now(), o.toolsEnabled),
		Timestamp: o.now(),
	})
	for _, msg := range history {
		if msg.Role == model.RoleSystem {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// roundTrip sends messages and collects the text and the first tool call.
// tools == nil sends a plain chat request.
func (o *Orchestrator) roundTrip(ctx context.Context, messages []model.Message, tools []mcp.Tool) (string, *model.ToolCall, error) {
	var (
		text  strings.Builder
		first *model.ToolCall
		extra int
	)

	callback := func(chunk string, toolCalls []model.ToolCall) error {
		text.WriteString(chunk)
		for i := range toolCalls {
			if first == nil {
				call := toolCalls[i]
				first = &call
				continue
			}
			extra++
		}
		return nil
	}

	var err error
	if len(tools) > 0 {
		err = o.provider.ChatWithTools(ctx, messages, tools, callback)
	} else {
		err = o.provider.Chat(ctx, messages, callback)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", nil, err
		}
		config.Debugf("[Orchestrator] Backend error: %v", err)
		return "", nil, &UnavailableError{Err: err}
	}

	if extra > 0 {
		config.Debugf("[Orchestrator] Ignoring %d additional tool call(s)", extra)
	}
	if len(tools) == 0 {
		first = nil
	}
	return strings.TrimSpace(text.String()), first, nil
}

func checkToolCall(call model.ToolCall) error {
	if strings.TrimSpace(call.Name) == "" {
		return fmt.Errorf("%w: missing tool name", ErrModelProtocol)
	}
	if call.Arguments == nil {
		return fmt.Errorf("%w: arguments for %s are not a JSON object: %q", ErrModelProtocol, call.Name, call.RawArguments)
	}
	return nil
}
