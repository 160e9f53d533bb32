package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vango-go/vai-friend/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger is a dependency checked by readiness, such as the history database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyHandler reports 503 while the process drains or a dependency is down.
type ReadyHandler struct {
	Lifecycle *lifecycle.Lifecycle
	Store     Pinger
	Timeout   time.Duration
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining"`
		Store    string   `json:"store"`
		Issues   []string `json:"issues,omitempty"`
	}

	resp := readyResp{Store: "disabled"}
	if h.Lifecycle.IsDraining() {
		resp.Draining = true
		resp.Issues = append(resp.Issues, "server is draining")
	}
	if h.Store != nil {
		timeout := h.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		err := h.Store.Ping(ctx)
		cancel()
		if err != nil {
			resp.Store = "unavailable"
			resp.Issues = append(resp.Issues, "history store unavailable")
		} else {
			resp.Store = "ok"
		}
	}

	resp.OK = len(resp.Issues) == 0
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
