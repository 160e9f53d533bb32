package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/vango-go/vai-friend/pkg/core"
	"github.com/vango-go/vai-friend/pkg/store"
)

// MaxSessionsLimit caps the limit query parameter of GET /sessions.
const MaxSessionsLimit = 500

// SessionsHandler serves GET /sessions. Without a history store the route
// does not exist.
type SessionsHandler struct {
	History History
}

type sessionsResponse struct {
	Sessions []store.Session `json:"sessions"`
}

func (h SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, "GET")
		return
	}

	limit := store.DefaultSessionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxSessionsLimit {
			writeError(w, r, core.NewInvalidRequestErrorWithParam("limit must be between 1 and 500", "limit"))
			return
		}
		limit = n
	}

	sessions, err := h.History.Sessions(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

// SessionDetailHandler serves GET /sessions/{id}.
type SessionDetailHandler struct {
	History History
}

type sessionDetailResponse struct {
	store.Session
	Transcript []store.Message `json:"transcript"`
}

func (h SessionDetailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, "GET")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("session id must be a uuid", "id"))
		return
	}

	session, err := h.History.Session(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	messages, err := h.History.SessionHistory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, sessionDetailResponse{Session: session, Transcript: messages})
}
