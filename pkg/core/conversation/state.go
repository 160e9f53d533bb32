package conversation

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is the single process-wide conversation state.
type State int32

const (
	// StateIdle waits for a wake phrase.
	StateIdle State = iota
	// StateActiveSession listens for the user's next utterance.
	StateActiveSession
	// StateThinking is while a reply is being generated.
	StateThinking
	// StateSpeaking is while synthesized audio plays back.
	StateSpeaking
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateActiveSession:
		return "ACTIVE_SESSION"
	case StateThinking:
		return "THINKING"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// Status maps the state to the vocabulary exposed to clients.
func (s State) Status() string {
	switch s {
	case StateActiveSession:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "idle"
	}
}

// Trigger is an input to the state machine.
type Trigger int

const (
	TriggerWakeDetected Trigger = iota
	TriggerSessionActive
	TriggerStartThinking
	TriggerStartSpeaking
	TriggerFinishSpeaking
	TriggerSessionEnd
)

func (t Trigger) String() string {
	switch t {
	case TriggerWakeDetected:
		return "wake_detected"
	case TriggerSessionActive:
		return "session_active"
	case TriggerStartThinking:
		return "start_thinking"
	case TriggerStartSpeaking:
		return "start_speaking"
	case TriggerFinishSpeaking:
		return "finish_speaking"
	case TriggerSessionEnd:
		return "session_end"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// Next returns the state reached from s on trigger t. Unlisted pairs return s.
func Next(s State, t Trigger) State {
	switch t {
	case TriggerSessionEnd:
		return StateIdle
	case TriggerWakeDetected:
		if s == StateIdle {
			return StateActiveSession
		}
	case TriggerStartThinking:
		if s == StateActiveSession {
			return StateThinking
		}
	case TriggerStartSpeaking:
		if s == StateActiveSession || s == StateThinking {
			return StateSpeaking
		}
	case TriggerFinishSpeaking:
		if s == StateSpeaking {
			return StateActiveSession
		}
	}
	return s
}

// Listener observes state changes. It is called synchronously with the
// transition lock held, so it must not fire transitions itself.
type Listener func(from, to State)

type listenerEntry struct {
	id int
	fn Listener
}

// Machine owns the current State and applies transitions.
type Machine struct {
	mu        sync.Mutex
	state     atomic.Int32
	listeners []listenerEntry
	nextID    int
	logger    *slog.Logger
}

// NewMachine returns a machine in StateIdle.
func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{logger: logger}
}

// State returns the current state. Safe for concurrent use.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Subscribe registers l and returns a function that removes it.
func (m *Machine) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: l})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, e := range m.listeners {
				if e.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Fire applies t and reports whether the state changed. Listeners are
// notified once each, in registration order, only when it did.
func (m *Machine) Fire(t Trigger) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.State()
	to := Next(from, t)
	if from == to {
		return false
	}
	m.state.Store(int32(to))
	m.logger.Debug("state transition", "from", from.String(), "to", to.String(), "trigger", t.String())

	for _, e := range m.listeners {
		m.notify(e, from, to)
	}
	return true
}

func (m *Machine) notify(e listenerEntry, from, to State) {
	defer func() {
		if v := recover(); v != nil {
			m.logger.Error("state listener panic", "listener", e.id, "from", from.String(), "to", to.String(), "panic", v)
		}
	}()
	e.fn(from, to)
}

func (m *Machine) WakeDetected() bool   { return m.Fire(TriggerWakeDetected) }
func (m *Machine) SessionActive() bool  { return m.Fire(TriggerSessionActive) }
func (m *Machine) StartThinking() bool  { return m.Fire(TriggerStartThinking) }
func (m *Machine) StartSpeaking() bool  { return m.Fire(TriggerStartSpeaking) }
func (m *Machine) FinishSpeaking() bool { return m.Fire(TriggerFinishSpeaking) }
func (m *Machine) SessionEnd() bool     { return m.Fire(TriggerSessionEnd) }
