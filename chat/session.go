// Package chat holds conversation sessions: the ordered message history of
// one chat and the two-phase round trip that drives it (model, optional
// tool execution, model again).
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"finassist/config"
	"finassist/model"
	"finassist/orchestrator"
	"finassist/storage"
	"finassist/tools"
)

var (
	// ErrBusy is returned when a message arrives while a round trip is in flight.
	ErrBusy = errors.New("chat: a reply is already in progress")

	// ErrClosed is returned by a closed session, including to a round trip
	// that was in flight when the session closed.
	ErrClosed = errors.New("chat: session closed")

	ErrEmptyMessage    = errors.New("chat: empty message")
	ErrNothingToResume = errors.New("chat: no interrupted turn to resume")
	ErrSessionNotFound = errors.New("chat: session not found")
	ErrUnauthenticated = errors.New("chat: user ID required")
)

// State is where a session is in the round trip.
type State int

const (
	AwaitingInput State = iota
	Round1Pending
	Round2Pending
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case Round1Pending:
		return "round1_pending"
	case Round2Pending:
		return "round2_pending"
	default:
		return "unknown"
	}
}

// Converser runs one model round trip. *orchestrator.Orchestrator implements it.
type Converser interface {
	Converse(ctx context.Context, history []model.Message) (*orchestrator.Reply, error)
}

// ToolRunner executes a tool call. *tools.Executor implements it.
type ToolRunner interface {
	Execute(ctx context.Context, call model.ToolCall, scope tools.Scope) tools.Result
}

// Archiver stores a finished conversation. *storage.Archive implements it.
type Archiver interface {
	Save(conv *storage.Conversation) error
}

// Turn is what one Submit or Resume added to the conversation.
type Turn struct {
	Reply      model.Message   `json:"reply"`
	ToolCall   *model.ToolCall `json:"toolCall,omitempty"`
	ToolResult *tools.Result   `json:"toolResult,omitempty"`
	Messages   []model.Message `json:"messages"`
}

// Session is one conversation. Its history is only changed by its own
// round trips, one at a time.
type Session struct {
	id            string
	userID        string
	modelName     string
	createdAt     time.Time
	converser     Converser
	runner        ToolRunner
	archive       Archiver
	maxToolRounds int
	now           func() time.Time

	mu          sync.Mutex
	state       State
	history     []model.Message
	interrupted bool
	closed      bool
	lastActive  time.Time
}

type SessionOption func(*Session)

// WithMaxToolRounds sets how many tools one user message may trigger.
// The default of 1 makes the reply after a tool result final.
func WithMaxToolRounds(n int) SessionOption {
	return func(s *Session) {
		if n >= 0 {
			s.maxToolRounds = n
		}
	}
}

// WithArchive saves the transcript when the session closes.
func WithArchive(a Archiver) SessionOption {
	return func(s *Session) {
		s.archive = a
	}
}

// WithModelName records the model name in the archived transcript.
func WithModelName(name string) SessionOption {
	return func(s *Session) {
		s.modelName = name
	}
}

func withClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

func NewSession(id, userID string, converser Converser, runner ToolRunner, opts ...SessionOption) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	s := &Session{
		id:            id,
		userID:        userID,
		converser:     converser,
		runner:        runner,
		maxToolRounds: 1,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createdAt = s.now()
	s.lastActive = s.createdAt
	return s, nil
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the history.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.history...)
}

// Interrupted reports whether a tool ran but the final reply failed; Resume
// finishes that turn.
func (s *Session) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Submit appends a user message and runs the round trip to a final reply.
//
// If the first model call fails the user message is removed again so the
// caller can resend it. If a tool already ran, its result stays in the
// history and Resume retries only the final model call.
func (s *Session) Submit(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if err := s.beginLocked(Round1Pending); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	userMsg := model.NewUserMessage(text)
	s.history = append(s.history, userMsg)
	s.interrupted = false
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	config.Debugf("[Chat] Session %s: round 1", s.id)
	reply, err := s.converser.Converse(ctx, snapshot)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if err != nil {
		s.history = s.history[:len(s.history)-1]
		s.endLocked()
		s.mu.Unlock()
		config.Debugf("[Chat] Session %s: round 1 failed, user message rolled back: %v", s.id, err)
		return nil, err
	}
	s.mu.Unlock()

	turn := &Turn{Messages: []model.Message{userMsg}}
	return s.continueTurn(ctx, turn, reply, 0)
}

// Resume finishes a turn whose final model call failed after a tool ran.
// The tool is not executed again.
func (s *Session) Resume(ctx context.Context) (*Turn, error) {
	s.mu.Lock()
	if !s.interrupted && !s.closed && s.state == AwaitingInput {
		s.mu.Unlock()
		return nil, ErrNothingToResume
	}
	if err := s.beginLocked(Round2Pending); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	executed := ToolRoundsSinceUser(s.history)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	config.Debugf("[Chat] Session %s: resuming final round", s.id)
	reply, err := s.converser.Converse(ctx, snapshot)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if err != nil {
		s.endLocked()
		s.mu.Unlock()
		return nil, err
	}
	s.interrupted = false
	s.mu.Unlock()

	return s.continueTurn(ctx, &Turn{}, reply, executed)
}

// continueTurn executes requested tools until the round limit is reached,
// then appends the final reply. Called with the session busy and unlocked.
func (s *Session) continueTurn(ctx context.Context, turn *Turn, reply *orchestrator.Reply, executed int) (*Turn, error) {
	scope := tools.Scope{UserID: s.userID}

	for reply.NeedsToolCall() && executed < s.maxToolRounds {
		call := *reply.ToolCall

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		s.history = append(s.history, reply.Message)
		s.state = Round2Pending
		s.mu.Unlock()
		turn.Messages = append(turn.Messages, reply.Message)

		result := s.runner.Execute(ctx, call, scope)
		executed++
		config.Debugf("[Chat] Session %s: tool %s success=%v", s.id, call.Name, result.Success)

		toolMsg := model.NewToolMessage(call, result.JSON())

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		s.history = append(s.history, toolMsg)
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		turn.Messages = append(turn.Messages, toolMsg)
		turn.ToolCall = &call
		turn.ToolResult = &result

		var err error
		reply, err = s.converser.Converse(ctx, snapshot)
		if err != nil {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return nil, ErrClosed
			}
			s.interrupted = true
			s.endLocked()
			s.mu.Unlock()
			config.Debugf("[Chat] Session %s: final round failed, resumable: %v", s.id, err)
			return nil, err
		}
	}

	if reply.NeedsToolCall() {
		config.Debugf("[Chat] Session %s: tool %s requested past the round limit, treated as final", s.id, reply.ToolCall.Name)
	}
	final := reply.Final()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.history = append(s.history, final)
	s.endLocked()

	turn.Reply = final
	turn.Messages = append(turn.Messages, final)
	return turn, nil
}

func (s *Session) beginLocked(next State) error {
	if s.closed {
		return ErrClosed
	}
	if s.state != AwaitingInput {
		return ErrBusy
	}
	s.state = next
	return nil
}

func (s *Session) endLocked() {
	s.state = AwaitingInput
	s.lastActive = s.now()
}

func (s *Session) snapshotLocked() []model.Message {
	return append([]model.Message(nil), s.history...)
}

// Close ends the session. A round trip still in flight completes but its
// result is discarded. The transcript is archived when an archive is set.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	history := s.history
	s.history = nil
	s.state = AwaitingInput
	s.mu.Unlock()

	config.Debugf("[Chat] Session %s closed (%d messages)", s.id, len(history))

	if s.archive == nil || len(history) == 0 {
		return nil
	}
	return s.archive.Save(&storage.Conversation{
		ID:        s.id,
		UserID:    s.userID,
		Model:     s.modelName,
		CreatedAt: s.createdAt,
		Messages:  history,
	})
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ToolRoundsSinceUser counts tool results after the last user message, i.e.
// how many tool rounds the current turn has used.
func ToolRoundsSinceUser(history []model.Message) int {
	n := 0
	for i := len(history) - 1; i >= 0; i-- {
		switch history[i].Role {
		case model.RoleUser:
			return n
		case model.RoleTool:
			n++
		}
	}
	return n
}

func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:           s.id,
		State:        s.state.String(),
		MessageCount: len(s.history),
		Interrupted:  s.interrupted,
		CreatedAt:    s.createdAt,
		LastActive:   s.lastActive,
	}
}
