// Package store persists conversation history in Postgres and mirrors the
// live conversation state into Redis.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("store: not found")

// Session is a stored session with its message count.
type Session struct {
	ID        uuid.UUID  `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Messages  int        `json:"messages"`
}

// Message is one stored turn.
type Message struct {
	ID        uuid.UUID         `json:"id"`
	SessionID uuid.UUID         `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Role      conversation.Role `json:"role"`
	Content   string            `json:"content"`
}
