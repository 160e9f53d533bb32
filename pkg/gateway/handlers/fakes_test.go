package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
	"github.com/vango-go/vai-friend/pkg/store"
)

type fakeConversation struct {
	mu        sync.Mutex
	state     conversation.State
	listeners map[int]conversation.Listener
	nextID    int

	started bool
	err     error
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{listeners: make(map[int]conversation.Listener)}
}

func (f *fakeConversation) Status() conversation.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConversation) StartSession(context.Context) (bool, error) {
	return f.started, f.err
}

func (f *fakeConversation) Subscribe(l conversation.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeConversation) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeConversation) set(to conversation.State) {
	f.mu.Lock()
	from := f.state
	f.state = to
	listeners := make([]conversation.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()
	for _, l := range listeners {
		l(from, to)
	}
}

type fakeHistory struct {
	sessions []store.Session
	messages map[uuid.UUID][]store.Message
	err      error
	limit    int
}

func (f *fakeHistory) Sessions(_ context.Context, limit int) ([]store.Session, error) {
	f.limit = limit
	return f.sessions, f.err
}

func (f *fakeHistory) Session(_ context.Context, id uuid.UUID) (store.Session, error) {
	if f.err != nil {
		return store.Session{}, f.err
	}
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return store.Session{}, store.ErrNotFound
}

func (f *fakeHistory) SessionHistory(_ context.Context, id uuid.UUID) ([]store.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages[id], nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }
