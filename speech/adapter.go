// Package speech turns recognizer events into a running transcript for the
// conversation input. An Adapter is an explicit state machine:
//
//	Idle -> Listening -> Idle | Error
//
// Capability is checked once when the adapter is built; an unsupported
// adapter rejects every start with ErrUnsupported.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"finassist/config"
)

var (
	ErrUnsupported      = errors.New("Unsupported")
	ErrAlreadyListening = errors.New("speech recognition already listening")
	ErrNotListening     = errors.New("speech recognition not listening")
)

// Phase is the adapter's position in the Idle/Listening/Error machine.
type Phase int

const (
	Idle Phase = iota
	Listening
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// EventKind distinguishes what a recognizer reports.
type EventKind int

const (
	Interim EventKind = iota
	Final
	End
	Failure
)

// Event is one recognizer callback. Text is set for Interim and Final, Err for Failure.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Recognizer is a speech-to-text backend.
type Recognizer interface {
	// Supported reports whether recognition can run in this environment.
	Supported() bool
	// Start begins one recognition attempt. emit may be called from any
	// goroutine until the attempt ends or the capture is stopped.
	Start(ctx context.Context, emit func(Event)) (Capture, error)
}

// Capture is a running recognition attempt.
type Capture interface {
	// Write feeds 16-bit little-endian PCM audio.
	Write(pcm []byte) error
	Stop() error
}

// State is the snapshot exposed to the conversation input.
type State struct {
	Transcript  string `json:"transcript"`
	IsListening bool   `json:"isListening"`
	IsSupported bool   `json:"isSupported"`
	Error       string `json:"error,omitempty"`
	Phase       string `json:"phase"`
}

type Adapter struct {
	recognizer Recognizer
	supported  bool

	mu         sync.Mutex
	phase      Phase
	finals     []string
	interim    string
	errMsg     string
	generation uint64
	capture    Capture
	listeners  map[int]func(State)
	nextID     int
}

// NewAdapter checks the recognizer's capability once. A nil recognizer is unsupported.
func NewAdapter(recognizer Recognizer) *Adapter {
	supported := recognizer != nil && recognizer.Supported()
	if !supported {
		config.Debugf("[Speech] Recognition unsupported")
	}
	return &Adapter{
		recognizer: recognizer,
		supported:  supported,
		listeners:  make(map[int]func(State)),
	}
}

// StartListening begins a new attempt. With reset the previous transcript
// is cleared first; otherwise new segments are appended to it.
func (a *Adapter) StartListening(ctx context.Context, reset bool) error {
	a.mu.Lock()
	if !a.supported {
		a.phase = Failed
		a.errMsg = ErrUnsupported.Error()
		state := a.stateLocked()
		a.mu.Unlock()
		a.notify(state)
		return ErrUnsupported
	}
	if a.phase == Listening {
		a.mu.Unlock()
		return ErrAlreadyListening
	}

	if reset {
		a.finals = nil
		a.interim = ""
	}
	a.errMsg = ""
	a.phase = Listening
	a.generation++
	gen := a.generation
	state := a.stateLocked()
	a.mu.Unlock()
	a.notify(state)

	capture, err := a.recognizer.Start(ctx, func(ev Event) {
		a.handle(gen, ev)
	})

	a.mu.Lock()
	if gen != a.generation || a.phase != Listening {
		// Stopped or failed while starting.
		a.mu.Unlock()
		if capture != nil {
			capture.Stop()
		}
		return err
	}
	if err != nil {
		a.phase = Failed
		a.errMsg = Describe(err)
		state = a.stateLocked()
		a.mu.Unlock()
		a.notify(state)
		config.Debugf("[Speech] Start failed: %v", err)
		return fmt.Errorf("start speech recognition: %w", err)
	}
	a.capture = capture
	a.mu.Unlock()

	config.Debugf("[Speech] Listening (attempt %d)", gen)
	return nil
}

// StopListening ends the current attempt and returns to Idle. Events the
// recognizer still delivers for it are ignored.
func (a *Adapter) StopListening() error {
	a.mu.Lock()
	if a.phase != Listening {
		a.mu.Unlock()
		return nil
	}
	a.generation++
	a.phase = Idle
	a.commitInterimLocked()
	capture := a.capture
	a.capture = nil
	state := a.stateLocked()
	a.mu.Unlock()

	a.notify(state)
	if capture != nil {
		return capture.Stop()
	}
	return nil
}

// ResetTranscript clears the transcript without touching the phase.
func (a *Adapter) ResetTranscript() {
	a.mu.Lock()
	a.finals = nil
	a.interim = ""
	state := a.stateLocked()
	a.mu.Unlock()
	a.notify(state)
}

// Feed forwards audio to the active capture.
func (a *Adapter) Feed(pcm []byte) error {
	a.mu.Lock()
	capture := a.capture
	listening := a.phase == Listening
	a.mu.Unlock()

	if !listening || capture == nil {
		return ErrNotListening
	}
	return capture.Write(pcm)
}

func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

// OnChange registers fn to receive every new state. The returned func unregisters it.
func (a *Adapter) OnChange(fn func(State)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *Adapter) handle(gen uint64, ev Event) {
	a.mu.Lock()
	if gen != a.generation || a.phase != Listening {
		a.mu.Unlock()
		return
	}

	switch ev.Kind {
	case Interim:
		a.interim = strings.TrimSpace(ev.Text)
	case Final:
		if text := strings.TrimSpace(ev.Text); text != "" {
			a.finals = append(a.finals, text)
		}
		a.interim = ""
	case End:
		a.phase = Idle
		a.commitInterimLocked()
		a.capture = nil
	case Failure:
		a.phase = Failed
		a.errMsg = Describe(ev.Err)
		a.capture = nil
		config.Debugf("[Speech] Recognition error: %v", ev.Err)
	}
	state := a.stateLocked()
	a.mu.Unlock()

	a.notify(state)
}

func (a *Adapter) commitInterimLocked() {
	if a.interim != "" {
		a.finals = append(a.finals, a.interim)
		a.interim = ""
	}
}

func (a *Adapter) stateLocked() State {
	segments := a.finals
	if a.interim != "" {
		segments = append(segments[:len(segments):len(segments)], a.interim)
	}
	return State{
		Transcript:  strings.Join(segments, " "),
		IsListening: a.phase == Listening,
		IsSupported: a.supported,
		Error:       a.errMsg,
		Phase:       a.phase.String(),
	}
}

func (a *Adapter) notify(state State) {
	a.mu.Lock()
	listeners := make([]func(State), 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}
