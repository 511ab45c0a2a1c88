// Package tools holds the catalog of finance tools the assistant may call
// and the executor that runs a model's tool call against one user's ledger.
//
// Each tool is an mcp.Tool definition bound to a typed handler with Bind, so
// arguments are decoded into a concrete struct only after they have been
// validated against the definition's JSON schema, resolved once when the
// registry is built.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"finassist/storage"

	"github.com/mark3labs/mcp-go/mcp"
)

// Env is what a handler gets besides its arguments: the caller's ledger and
// the ID of the tool call being executed.
type Env struct {
	Ledger storage.Ledger
	CallID string
	Now    time.Time
}

// Handler executes one registered tool.
type Handler interface {
	Definition() mcp.Tool
	Invoke(ctx context.Context, env Env, args map[string]any) (any, error)
}

type boundHandler[A, R any] struct {
	tool mcp.Tool
	fn   func(ctx context.Context, env Env, args A) (R, error)
}

// Bind pairs a tool definition with a handler taking decoded arguments of
// type A and returning a result of type R.
func Bind[A, R any](tool mcp.Tool, fn func(ctx context.Context, env Env, args A) (R, error)) Handler {
	return &boundHandler[A, R]{tool: tool, fn: fn}
}

func (h *boundHandler[A, R]) Definition() mcp.Tool {
	return h.tool
}

func (h *boundHandler[A, R]) Invoke(ctx context.Context, env Env, args map[string]any) (any, error) {
	var decoded A
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &ArgumentError{Reason: fmt.Sprintf("arguments do not match %s: %v", h.tool.Name, err)}
	}
	return h.fn(ctx, env, decoded)
}

// Registry is an immutable, ordered set of tools. It is safe for concurrent use.
type Registry struct {
	handlers map[string]Handler
	schemas  map[string]*argumentSchema
	order    []string
}

// NewRegistry builds a registry; tool names must be unique and non-empty and
// every input schema must resolve.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{
		handlers: make(map[string]Handler, len(handlers)),
		schemas:  make(map[string]*argumentSchema, len(handlers)),
	}
	for _, h := range handlers {
		def := h.Definition()
		name := def.Name
		if name == "" {
			return nil, fmt.Errorf("tools: tool without a name")
		}
		if _, dup := r.handlers[name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", name)
		}
		schema, err := compileSchema(def)
		if err != nil {
			return nil, err
		}
		r.handlers[name] = h
		r.schemas[name] = schema
		r.order = append(r.order, name)
	}
	return r, nil
}

// List returns the tool definitions in registration order.
func (r *Registry) List() []mcp.Tool {
	defs := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.handlers[name].Definition())
	}
	return defs
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Validate checks args against the named tool's input schema. The returned
// error is an *ArgumentError naming the offending field when there is one.
func (r *Registry) Validate(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("tools: no tool named %q", name)
	}
	return schema.validate(args)
}
