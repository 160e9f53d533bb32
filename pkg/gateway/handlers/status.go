package handlers

import (
	"net/http"
)

// StatusHandler serves GET /status.
type StatusHandler struct {
	Conversation Conversation
}

func (h StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeMethodNotAllowed(w, r, "GET, HEAD")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, stateResponse{State: h.Conversation.Status().Status()})
}

// StartSessionHandler serves POST /start-session. It behaves like a wake
// detection and never interrupts an active session.
type StartSessionHandler struct {
	Conversation Conversation
}

type startSessionResponse struct {
	Status string `json:"status"`
}

func (h StartSessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, "POST")
		return
	}
	started, err := h.Conversation.StartSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := "already_active"
	if started {
		status = "started"
	}
	writeJSON(w, http.StatusOK, startSessionResponse{Status: status})
}
