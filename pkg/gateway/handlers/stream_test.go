package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
	"github.com/vango-go/vai-friend/pkg/gateway/config"
	"github.com/vango-go/vai-friend/pkg/gateway/lifecycle"
)

func stateSocketServer(t *testing.T, conv *fakeConversation, lc *lifecycle.Lifecycle) string {
	t.Helper()
	h := StateSocketHandler{
		Config:       config.Config{CORSAllowedOrigins: map[string]struct{}{"http://localhost:3000": {}}},
		Conversation: conv,
		Lifecycle:    lc,
		PingInterval: time.Second,
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readState(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg stateResponse
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg.State
}

func TestStateSocket_PushesOnConnectAndChange(t *testing.T) {
	conv := newFakeConversation()
	url := stateSocketServer(t, conv, &lifecycle.Lifecycle{})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if got := readState(t, conn); got != "idle" {
		t.Fatalf("initial state=%q", got)
	}
	conv.set(conversation.StateActiveSession)
	if got := readState(t, conn); got != "listening" {
		t.Fatalf("state=%q, want listening", got)
	}
	conv.set(conversation.StateSpeaking)
	if got := readState(t, conn); got != "speaking" {
		t.Fatalf("state=%q, want speaking", got)
	}
}

func TestStateSocket_UnsubscribesOnClose(t *testing.T) {
	conv := newFakeConversation()
	url := stateSocketServer(t, conv, &lifecycle.Lifecycle{})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readState(t, conn)
	if conv.subscribers() != 1 {
		t.Fatalf("subscribers=%d", conv.subscribers())
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for conv.subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("listener not removed after client closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStateSocket_RejectsUnknownOrigin(t *testing.T) {
	url := stateSocketServer(t, newFakeConversation(), &lifecycle.Lifecycle{})

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp=%v", resp)
	}

	header = http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin dial: %v", err)
	}
	conn.Close()
}

func TestStateSocket_ClosesWhenDraining(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	url := stateSocketServer(t, newFakeConversation(), lc)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readState(t, conn)

	lc.SetDraining(true)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("err=%v, want going away close", err)
	}

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("dial while draining: err=%v resp=%v", err, resp)
	}
}

func TestEvents_StreamsStateChanges(t *testing.T) {
	conv := newFakeConversation()
	srv := httptest.NewServer(EventsHandler{Conversation: conv, PingInterval: time.Minute})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	nextData := func() string {
		t.Helper()
		for sc.Scan() {
			line := sc.Text()
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return ""
	}

	if got := nextData(); got != `{"state":"idle"}` {
		t.Fatalf("first event=%s", got)
	}
	conv.set(conversation.StateThinking)
	if got := nextData(); got != `{"state":"thinking"}` {
		t.Fatalf("second event=%s", got)
	}
}

func TestEvents_RejectsWhileDraining(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	rr := httptest.NewRecorder()
	EventsHandler{Conversation: newFakeConversation(), Lifecycle: lc}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestWatchState_CoalescesToLatest(t *testing.T) {
	conv := newFakeConversation()
	states, unsubscribe := watchState(conv)
	defer unsubscribe()

	conv.set(conversation.StateActiveSession)
	conv.set(conversation.StateThinking)
	conv.set(conversation.StateSpeaking)

	select {
	case s := <-states:
		if s != conversation.StateSpeaking {
			t.Fatalf("got %v, want latest state", s)
		}
	default:
		t.Fatal("no state delivered")
	}
	select {
	case s := <-states:
		t.Fatalf("unexpected extra state %v", s)
	default:
	}
}
