package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"finassist/config"

	"github.com/google/uuid"
)

// SessionInfo describes a live session for listings.
type SessionInfo struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	MessageCount int       `json:"messageCount"`
	Interrupted  bool      `json:"interrupted"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActive   time.Time `json:"lastActive"`
}

// Manager owns the live sessions of all users and closes idle ones.
type Manager struct {
	converser   Converser
	runner      ToolRunner
	sessionOpts []SessionOption
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

type ManagerOption func(*Manager)

// WithIdleTimeout closes sessions left idle for longer than d. Zero disables expiry.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// WithSessionOptions applies opts to every session the manager creates.
func WithSessionOptions(opts ...SessionOption) ManagerOption {
	return func(m *Manager) {
		m.sessionOpts = append(m.sessionOpts, opts...)
	}
}

func withManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(converser Converser, runner ToolRunner, opts ...ManagerOption) *Manager {
	m := &Manager{
		converser: converser,
		runner:    runner,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new session for userID.
func (m *Manager) Create(userID string) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}

	opts := append([]SessionOption{withClock(m.now)}, m.sessionOpts...)
	s, err := NewSession(uuid.New().String(), userID, m.converser, m.runner, opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	config.Debugf("[Chat] Created session %s for user %s", s.ID(), userID)
	return s, nil
}

// Get returns the session if it exists and belongs to userID.
func (m *Manager) Get(userID, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()

	if !ok || s.UserID() != userID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns the user's live sessions, most recently active first.
func (m *Manager) List(userID string) []SessionInfo {
	m.mu.Lock()
	var owned []*Session
	for _, s := range m.sessions {
		if s.UserID() == userID {
			owned = append(owned, s)
		}
	}
	m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(owned))
	for _, s := range owned {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastActive.After(infos[j].LastActive)
	})
	return infos
}

// Close removes the session and closes it.
func (m *Manager) Close(userID, id string) error {
	s, err := m.Get(userID, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	return s.Close()
}

// Sweep closes sessions idle for longer than the idle timeout and returns
// how many were closed. Sessions with a round trip in flight are kept.
func (m *Manager) Sweep() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.State() == AwaitingInput && s.LastActive().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if err := s.Close(); err != nil {
			config.Debugf("[Chat] Failed to archive expired session %s: %v", s.ID(), err)
		}
	}
	if len(expired) > 0 {
		config.Debugf("[Chat] Expired %d idle session(s)", len(expired))
	}
	return len(expired)
}

// Run sweeps idle sessions periodically until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// CloseAll closes every session, archiving transcripts where configured.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		if err := s.Close(); err != nil {
			config.Debugf("[Chat] Failed to archive session %s: %v", s.ID(), err)
		}
	}
}
