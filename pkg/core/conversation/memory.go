package conversation

import (
	"strings"
	"sync"
	"time"
)

// DefaultMemorySize is the number of turns kept as generation context.
const DefaultMemorySize = 8

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one exchanged utterance.
type Turn struct {
	Role Role
	Text string
	At   time.Time
}

// Transcript is a recognizer result for the current utterance.
type Transcript struct {
	Text  string
	Final bool
}

// Empty reports whether the transcript carries no words.
func (t Transcript) Empty() bool {
	return strings.TrimSpace(t.Text) == ""
}

// Memory is a bounded, oldest-evicted-first window of turns.
type Memory struct {
	mu       sync.Mutex
	turns    []Turn
	capacity int
}

// NewMemory returns a memory holding at most capacity turns.
// A non-positive capacity uses DefaultMemorySize.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemorySize
	}
	return &Memory{
		turns:    make([]Turn, 0, capacity),
		capacity: capacity,
	}
}

// Append adds t, evicting the oldest turn once capacity is exceeded.
func (m *Memory) Append(t Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.turns) == m.capacity {
		copy(m.turns, m.turns[1:])
		m.turns = m.turns[:len(m.turns)-1]
	}
	m.turns = append(m.turns, t)
}

// Turns returns a copy of the retained turns, oldest first.
func (m *Memory) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

func (m *Memory) Capacity() int {
	return m.capacity
}

// Clear drops every retained turn.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = m.turns[:0]
}
