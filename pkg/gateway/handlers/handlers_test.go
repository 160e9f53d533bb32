package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
	"github.com/vango-go/vai-friend/pkg/core/orchestrator"
	"github.com/vango-go/vai-friend/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-friend/pkg/store"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestReadyHandler(t *testing.T) {
	tests := []struct {
		name     string
		draining bool
		store    Pinger
		want     int
		wantKey  string
	}{
		{name: "no store", want: http.StatusOK, wantKey: "disabled"},
		{name: "store ok", store: fakePinger{}, want: http.StatusOK, wantKey: "ok"},
		{name: "store down", store: fakePinger{err: errors.New("dial")}, want: http.StatusServiceUnavailable, wantKey: "unavailable"},
		{name: "draining", draining: true, want: http.StatusServiceUnavailable, wantKey: "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := &lifecycle.Lifecycle{}
			lc.SetDraining(tt.draining)
			rr := httptest.NewRecorder()
			ReadyHandler{Lifecycle: lc, Store: tt.store}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tt.want {
				t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
			}
			if got := decode(t, rr)["store"]; got != tt.wantKey {
				t.Fatalf("store=%v, want %s", got, tt.wantKey)
			}
		})
	}
}

func TestStatusHandler(t *testing.T) {
	conv := newFakeConversation()
	h := StatusHandler{Conversation: conv}

	for state, want := range map[conversation.State]string{
		conversation.StateIdle:          "idle",
		conversation.StateActiveSession: "listening",
		conversation.StateThinking:      "thinking",
		conversation.StateSpeaking:      "speaking",
	} {
		conv.set(state)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
		if got := decode(t, rr)["state"]; got != want {
			t.Fatalf("state=%v, want %s", got, want)
		}
	}
}

func TestStatusHandler_RejectsPost(t *testing.T) {
	rr := httptest.NewRecorder()
	StatusHandler{Conversation: newFakeConversation()}.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Allow") != "GET, HEAD" {
		t.Fatalf("allow=%q", rr.Header().Get("Allow"))
	}
}

func TestStartSessionHandler(t *testing.T) {
	tests := []struct {
		name       string
		started    bool
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "started", started: true, wantStatus: http.StatusOK, wantBody: "started"},
		{name: "already active", wantStatus: http.StatusOK, wantBody: "already_active"},
		{name: "stopped", err: orchestrator.ErrStopped, wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := newFakeConversation()
			conv.started = tt.started
			conv.err = tt.err

			rr := httptest.NewRecorder()
			StartSessionHandler{Conversation: conv}.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/start-session", nil))
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
			}
			body := decode(t, rr)
			if tt.wantBody != "" && body["status"] != tt.wantBody {
				t.Fatalf("status field=%v, want %s", body["status"], tt.wantBody)
			}
			if tt.err != nil {
				errObj, _ := body["error"].(map[string]any)
				if errObj["code"] != "stopped" {
					t.Fatalf("error=%v", body["error"])
				}
			}
		})
	}
}

func TestStartSessionHandler_RequiresPost(t *testing.T) {
	rr := httptest.NewRecorder()
	StartSessionHandler{Conversation: newFakeConversation()}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/start-session", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestSessionsHandler_NoStoreIsNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	SessionsHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	SessionDetailHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/x", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("detail status=%d", rr.Code)
	}
}

func TestSessionsHandler_List(t *testing.T) {
	id := uuid.New()
	hist := &fakeHistory{sessions: []store.Session{{ID: id, StartedAt: time.Unix(100, 0).UTC(), Messages: 4}}}

	rr := httptest.NewRecorder()
	SessionsHandler{History: hist}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions?limit=5", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if hist.limit != 5 {
		t.Fatalf("limit=%d", hist.limit)
	}
	if !strings.Contains(rr.Body.String(), id.String()) {
		t.Fatalf("body missing session id: %s", rr.Body.String())
	}
}

func TestSessionsHandler_EmptyListIsArray(t *testing.T) {
	rr := httptest.NewRecorder()
	SessionsHandler{History: &fakeHistory{}}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	if !strings.Contains(rr.Body.String(), `"sessions":[]`) {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestSessionsHandler_BadLimit(t *testing.T) {
	for _, raw := range []string{"0", "-1", "abc", "501"} {
		rr := httptest.NewRecorder()
		SessionsHandler{History: &fakeHistory{}}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions?limit="+raw, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s status=%d", raw, rr.Code)
		}
	}
}

func TestSessionDetailHandler(t *testing.T) {
	id := uuid.New()
	hist := &fakeHistory{
		sessions: []store.Session{{ID: id, StartedAt: time.Unix(100, 0).UTC(), Messages: 2}},
		messages: map[uuid.UUID][]store.Message{id: {
			{ID: uuid.New(), SessionID: id, Role: conversation.RoleUser, Content: "hi"},
			{ID: uuid.New(), SessionID: id, Role: conversation.RoleAssistant, Content: "hello"},
		}},
	}
	h := SessionDetailHandler{History: hist}

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id.String(), nil)
	req.SetPathValue("id", id.String())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["id"] != id.String() {
		t.Fatalf("id=%v", body["id"])
	}
	transcript, _ := body["transcript"].([]any)
	if len(transcript) != 2 {
		t.Fatalf("transcript=%v", body["transcript"])
	}
}

func TestSessionDetailHandler_Errors(t *testing.T) {
	h := SessionDetailHandler{History: &fakeHistory{}}

	req := httptest.NewRequest(http.MethodGet, "/sessions/nope", nil)
	req.SetPathValue("id", "nope")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id status=%d", rr.Code)
	}

	missing := uuid.New().String()
	req = httptest.NewRequest(http.MethodGet, "/sessions/"+missing, nil)
	req.SetPathValue("id", missing)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing status=%d", rr.Code)
	}
}

func TestNotFoundHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	NotFoundHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	errObj, _ := decode(t, rr)["error"].(map[string]any)
	if errObj["type"] != "not_found_error" {
		t.Fatalf("error=%v", errObj)
	}
}
