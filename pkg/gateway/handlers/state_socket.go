package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
	"github.com/vango-go/vai-friend/pkg/gateway/config"
	"github.com/vango-go/vai-friend/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-friend/pkg/gateway/mw"
)

const stateSocketWriteTimeout = 5 * time.Second

// StateSocketHandler serves GET /ws/state. It pushes {"state":..} on connect
// and after every transition until the client goes away or the server drains.
type StateSocketHandler struct {
	Config       config.Config
	Conversation Conversation
	Lifecycle    *lifecycle.Lifecycle
	PingInterval time.Duration
	Logger       *slog.Logger
}

func (h StateSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if h.Lifecycle.IsDraining() {
		writeError(w, r, errDraining)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || mw.OriginAllowed(h.Config, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		return
	}
	defer conn.Close()

	states, unsubscribe := watchState(h.Conversation)
	defer unsubscribe()

	pingInterval := h.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
	})

	// Client messages are ignored; reading keeps control frames flowing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(s conversation.State) error {
		_ = conn.SetWriteDeadline(time.Now().Add(stateSocketWriteTimeout))
		return conn.WriteJSON(stateResponse{State: s.Status()})
	}
	if err := send(h.Conversation.Status()); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-h.Lifecycle.Draining():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(stateSocketWriteTimeout))
			return
		case s := <-states:
			if err := send(s); err != nil {
				logger.Debug("state socket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(stateSocketWriteTimeout)); err != nil {
				return
			}
		}
	}
}
