package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one wake-to-idle conversation.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time
	Memory    *Memory

	mu      sync.Mutex
	endedAt time.Time
	ended   bool
}

// NewSession starts a session at now with an empty rolling memory.
func NewSession(now time.Time) *Session {
	return &Session{
		ID:        uuid.New(),
		StartedAt: now,
		Memory:    NewMemory(DefaultMemorySize),
	}
}

// End marks the session finished and clears its memory. Only the first call
// has an effect; it reports whether this call ended the session.
func (s *Session) End(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	s.ended = true
	s.endedAt = now
	s.Memory.Clear()
	return true
}

// EndedAt returns the end timestamp, if the session has ended.
func (s *Session) EndedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt, s.ended
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}

// Duration is the elapsed time from start to end, or to now while active.
func (s *Session) Duration(now time.Time) time.Duration {
	if end, ok := s.EndedAt(); ok {
		return end.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
