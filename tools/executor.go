package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"finassist/config"
	"finassist/model"
	"finassist/storage"
)

// ErrorCode classifies a failed tool execution.
type ErrorCode string

const (
	CodeToolNotFound       ErrorCode = "ToolNotFound"
	CodeInvalidArguments   ErrorCode = "InvalidArguments"
	CodeUnauthenticated    ErrorCode = "Unauthenticated"
	CodeToolExecutionError ErrorCode = "ToolExecutionError"
)

var (
	ErrToolNotFound       = errors.New("tools: tool not found")
	ErrInvalidArguments   = errors.New("tools: invalid arguments")
	ErrUnauthenticated    = errors.New("tools: missing user identity")
	ErrToolExecutionError = errors.New("tools: tool execution failed")
)

var codeErrors = map[ErrorCode]error{
	CodeToolNotFound:       ErrToolNotFound,
	CodeInvalidArguments:   ErrInvalidArguments,
	CodeUnauthenticated:    ErrUnauthenticated,
	CodeToolExecutionError: ErrToolExecutionError,
}

// Failure is the error half of a Result. It matches the Err* sentinels
// with errors.Is.
type Failure struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Failure) Is(target error) bool {
	return codeErrors[f.Code] == target
}

// Result is the uniform envelope returned for every tool call.
type Result struct {
	ToolName string   `json:"toolName"`
	CallID   string   `json:"callId,omitempty"`
	Success  bool     `json:"success"`
	Data     any      `json:"data,omitempty"`
	Error    *Failure `json:"error,omitempty"`
}

// Err returns the failure as an error, or nil for a successful result.
func (r Result) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// JSON renders the result as the content of a tool-role message.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		fallback, _ := json.Marshal(Result{
			ToolName: r.ToolName,
			CallID:   r.CallID,
			Error:    &Failure{Code: CodeToolExecutionError, Message: "result could not be encoded"},
		})
		return string(fallback)
	}
	return string(data)
}

// Scope identifies whose data a tool call may touch.
type Scope struct {
	UserID string
}

// LedgerSource hands out ledgers bound to one user. *storage.Store implements it.
type LedgerSource interface {
	ForUser(userID string) (storage.Ledger, error)
}

// Executor validates and runs tool calls. It keeps no state between calls.
type Executor struct {
	registry *Registry
	ledgers  LedgerSource
	now      func() time.Time
}

type ExecutorOption func(*Executor)

// WithClock overrides the time handlers see as "now".
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

func NewExecutor(registry *Registry, ledgers LedgerSource, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		ledgers:  ledgers,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the tools this executor can run.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs call for the user in scope. It never panics on bad input and
// never returns a Go error: every outcome is a Result.
func (e *Executor) Execute(ctx context.Context, call model.ToolCall, scope Scope) Result {
	result := Result{ToolName: call.Name, CallID: call.ID}

	handler, ok := e.registry.Lookup(call.Name)
	if !ok {
		config.Debugf("[Tools] Unknown tool %q requested", call.Name)
		return result.fail(CodeToolNotFound, fmt.Sprintf("no tool named %q is available", call.Name), "")
	}

	if strings.TrimSpace(scope.UserID) == "" {
		return result.fail(CodeUnauthenticated, "tool calls require an authenticated user", "")
	}

	args, err := callArguments(call)
	if err != nil {
		return result.fail(CodeInvalidArguments, err.Error(), "")
	}

	if err := e.registry.Validate(call.Name, args); err != nil {
		field := ""
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			field = argErr.Field
		}
		config.Debugf("[Tools] %s rejected: %v", call.Name, err)
		return result.fail(CodeInvalidArguments, err.Error(), field)
	}

	ledger, err := e.ledgers.ForUser(scope.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNoUser) {
			return result.fail(CodeUnauthenticated, err.Error(), "")
		}
		return result.fail(CodeToolExecutionError, err.Error(), "")
	}

	env := Env{Ledger: ledger, CallID: call.ID, Now: e.now()}
	data, err := handler.Invoke(ctx, env, args)
	if err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			return result.fail(CodeInvalidArguments, err.Error(), argErr.Field)
		}
		config.Debugf("[Tools] %s failed for user %s: %v", call.Name, scope.UserID, err)
		return result.fail(CodeToolExecutionError, err.Error(), "")
	}

	config.Debugf("[Tools] %s succeeded for user %s", call.Name, scope.UserID)
	result.Success = true
	result.Data = data
	return result
}

func (r Result) fail(code ErrorCode, message, field string) Result {
	r.Success = false
	r.Data = nil
	r.Error = &Failure{Code: code, Message: message, Field: field}
	return r
}

// callArguments prefers the decoded arguments and falls back to parsing the
// raw string. A call with neither has no arguments.
func callArguments(call model.ToolCall) (map[string]any, error) {
	if call.Arguments != nil {
		return call.Arguments, nil
	}
	raw := strings.TrimSpace(call.RawArguments)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return nil, fmt.Errorf("arguments must be a JSON object")
	}
	return args, nil
}
