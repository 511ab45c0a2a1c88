package web

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"finassist/chat"
	"finassist/config"
	"finassist/speech"

	"github.com/gofiber/websocket/v2"
)

// speechCommand is a text frame sent by the client.
type speechCommand struct {
	Type  string `json:"type"`
	Reset *bool  `json:"reset,omitempty"`
	// Text overrides the transcript on submit, for edits made in the input field.
	Text string `json:"text,omitempty"`
}

// speechEvent is pushed to the client.
type speechEvent struct {
	Type  string         `json:"type"`
	State *speech.State  `json:"state,omitempty"`
	Turn  *turnView      `json:"turn,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

// wsWriter serializes writes; the adapter notifies from recognizer goroutines.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) send(ev speechEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteJSON(ev); err != nil {
		config.Debugf("[Web] Speech websocket write failed: %v", err)
	}
}

// handleSpeechWS bridges a browser microphone to the speech adapter. Binary
// frames are PCM16 audio; text frames are commands. On submit the
// transcript is sent to the conversation session as a user message.
func (s *Server) handleSpeechWS(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &wsWriter{conn: c}
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		_, body := apiError(chat.ErrUnauthenticated)
		out.send(speechEvent{Type: "error", Error: &body})
		return
	}

	var session *chat.Session
	if id := c.Query("sessionId"); id != "" {
		var err error
		if session, err = s.sessions.Get(userID, id); err != nil {
			_, body := apiError(err)
			out.send(speechEvent{Type: "error", Error: &body})
			return
		}
	}

	var recognizer speech.Recognizer
	if s.recognizer != nil {
		recognizer = s.recognizer()
	}
	adapter := speech.NewAdapter(recognizer)
	defer adapter.StopListening()

	unsubscribe := adapter.OnChange(func(state speech.State) {
		out.send(speechEvent{Type: "speech", State: &state})
	})
	defer unsubscribe()

	initial := adapter.State()
	out.send(speechEvent{Type: "speech", State: &initial})

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		if mt == websocket.BinaryMessage {
			if err := adapter.Feed(data); err != nil && !errors.Is(err, speech.ErrNotListening) {
				config.Debugf("[Web] Dropping audio: %v", err)
			}
			continue
		}

		var cmd speechCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}

		switch cmd.Type {
		case "start":
			reset := cmd.Reset == nil || *cmd.Reset
			// Failures are already reported through the state; text input keeps working.
			adapter.StartListening(ctx, reset)
		case "stop":
			adapter.StopListening()
		case "reset":
			adapter.ResetTranscript()
		case "submit":
			s.submitTranscript(ctx, out, session, adapter, cmd.Text)
		}
	}
}

func (s *Server) submitTranscript(ctx context.Context, out *wsWriter, session *chat.Session, adapter *speech.Adapter, override string) {
	if session == nil {
		_, body := apiError(chat.ErrSessionNotFound)
		out.send(speechEvent{Type: "error", Error: &body})
		return
	}

	adapter.StopListening()
	text := override
	if strings.TrimSpace(text) == "" {
		text = adapter.State().Transcript
	}

	turn, err := session.Submit(ctx, text)
	if err != nil {
		_, body := apiError(err)
		out.send(speechEvent{Type: "error", Error: &body})
		return
	}
	adapter.ResetTranscript()

	view := viewTurn(turn)
	out.send(speechEvent{Type: "reply", Turn: &view})
}
