package handlers

import (
	"net/http"
	"time"

	"github.com/vango-go/vai-friend/pkg/core"
	"github.com/vango-go/vai-friend/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-friend/pkg/gateway/sse"
)

var errDraining = core.NewUnavailableError("server is shutting down")

// sseRetry is the reconnect delay suggested to event stream clients.
const sseRetry = 3 * time.Second

// EventsHandler serves GET /events, a server-sent event stream of state
// changes for clients that cannot open a websocket.
type EventsHandler struct {
	Conversation Conversation
	Lifecycle    *lifecycle.Lifecycle
	PingInterval time.Duration
}

func (h EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, "GET")
		return
	}
	if h.Lifecycle.IsDraining() {
		writeError(w, r, errDraining)
		return
	}

	stream, err := sse.Open(w)
	if err != nil {
		writeError(w, r, err)
		return
	}

	states, unsubscribe := watchState(h.Conversation)
	defer unsubscribe()

	w.WriteHeader(http.StatusOK)
	if err := stream.Retry(sseRetry); err != nil {
		return
	}
	if err := stream.Event("state", stateResponse{State: h.Conversation.Status().Status()}); err != nil {
		return
	}

	pingInterval := h.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.Lifecycle.Draining():
			return
		case s := <-states:
			if err := stream.Event("state", stateResponse{State: s.Status()}); err != nil {
				return
			}
		case <-ticker.C:
			if err := stream.Comment("ping"); err != nil {
				return
			}
		}
	}
}
