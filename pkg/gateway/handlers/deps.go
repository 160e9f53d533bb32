package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
	"github.com/vango-go/vai-friend/pkg/store"
)

// Conversation is the control surface of the running orchestrator.
type Conversation interface {
	Status() conversation.State
	StartSession(ctx context.Context) (bool, error)
	Subscribe(l conversation.Listener) func()
}

// History reads persisted sessions.
type History interface {
	Sessions(ctx context.Context, limit int) ([]store.Session, error)
	Session(ctx context.Context, id uuid.UUID) (store.Session, error)
	SessionHistory(ctx context.Context, id uuid.UUID) ([]store.Message, error)
}

type stateResponse struct {
	State string `json:"state"`
}

// watchState subscribes to c and delivers the latest state on the returned
// channel. Intermediate states are coalesced when the reader falls behind.
func watchState(c Conversation) (<-chan conversation.State, func()) {
	ch := make(chan conversation.State, 1)
	unsubscribe := c.Subscribe(func(_, to conversation.State) {
		select {
		case ch <- to:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- to:
		default:
		}
	})
	return ch, unsubscribe
}
