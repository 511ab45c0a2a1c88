package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"finassist/config"

	"github.com/gorilla/websocket"
)

const (
	RealtimeURL      = "wss://api.openai.com/v1/realtime?intent=transcription"
	DefaultModel     = "gpt-4o-transcribe"
	readTimeout      = 120 * time.Second
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

// RealtimeRecognizer transcribes audio through OpenAI's realtime
// transcription sessions.
type RealtimeRecognizer struct {
	APIKey   string
	Model    string
	Language string
	URL      string
}

func NewRealtimeRecognizer(apiKey, model, language string) *RealtimeRecognizer {
	if model == "" {
		model = DefaultModel
	}
	return &RealtimeRecognizer{
		APIKey:   apiKey,
		Model:    model,
		Language: language,
		URL:      RealtimeURL,
	}
}

// Supported is false without an API key.
func (r *RealtimeRecognizer) Supported() bool {
	return r.APIKey != ""
}

func (r *RealtimeRecognizer) Start(ctx context.Context, emit func(Event)) (Capture, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, r.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &RecognitionError{Code: CodeNotAllowed, Message: resp.Status}
		}
		return nil, &RecognitionError{Code: CodeNetwork, Message: err.Error()}
	}

	c := &realtimeCapture{
		conn: conn,
		emit: emit,
		done: make(chan struct{}),
		text: make(map[string]string),
	}

	transcription := map[string]any{"model": r.Model}
	if r.Language != "" {
		transcription["language"] = r.Language
	}
	update := map[string]any{
		"type": "transcription_session.update",
		"session": map[string]any{
			"input_audio_format":        "pcm16",
			"input_audio_transcription": transcription,
			"turn_detection": map[string]any{
				"type":                "server_vad",
				"threshold":           0.5,
				"prefix_padding_ms":   300,
				"silence_duration_ms": 500,
			},
		},
	}
	if err := c.send(update); err != nil {
		conn.Close()
		return nil, &RecognitionError{Code: CodeNetwork, Message: err.Error()}
	}

	go c.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.done:
		}
	}()

	config.Debugf("[Speech] Realtime transcription session opened (model=%s)", r.Model)
	return c, nil
}

type realtimeCapture struct {
	conn *websocket.Conn
	emit func(Event)

	writeMu sync.Mutex

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	// partial transcripts per conversation item
	text map[string]string
}

type realtimeEvent struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *realtimeCapture) Write(pcm []byte) error {
	return c.send(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

func (c *realtimeCapture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.done)
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *realtimeCapture) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *realtimeCapture) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *realtimeCapture) readLoop() {
	for {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}

		var ev realtimeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			config.Debugf("[Speech] Skipping unparseable realtime event: %v", err)
			continue
		}

		switch ev.Type {
		case "conversation.item.input_audio_transcription.delta":
			c.text[ev.ItemID] += ev.Delta
			c.emit(Event{Kind: Interim, Text: c.text[ev.ItemID]})
		case "conversation.item.input_audio_transcription.completed":
			delete(c.text, ev.ItemID)
			c.emit(Event{Kind: Final, Text: ev.Transcript})
		case "conversation.item.input_audio_transcription.failed", "error":
			recErr := &RecognitionError{Code: CodeNetwork}
			if ev.Error != nil {
				recErr.Message = ev.Error.Message
				if ev.Error.Code != "" {
					recErr.Code = ev.Error.Code
				}
			}
			c.emit(Event{Kind: Failure, Err: recErr})
			c.Stop()
			return
		}
	}
}

// finish reports how the connection ended: a normal close or our own Stop
// is the natural end of speech, anything else a network failure.
func (c *realtimeCapture) finish(err error) {
	if c.isStopped() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.emit(Event{Kind: End})
	} else {
		var closeErr *websocket.CloseError
		msg := err.Error()
		if errors.As(err, &closeErr) {
			msg = fmt.Sprintf("connection closed (%d)", closeErr.Code)
		}
		c.emit(Event{Kind: Failure, Err: &RecognitionError{Code: CodeNetwork, Message: msg}})
	}
	c.Stop()
}
