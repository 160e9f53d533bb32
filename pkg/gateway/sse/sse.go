// Package sse writes text/event-stream responses.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"
)

var ErrNoFlush = errors.New("sse: response writer cannot flush")

// Stream frames events onto one response. It is safe for concurrent use.
type Stream struct {
	mu    sync.Mutex
	w     http.ResponseWriter
	flush func()
}

// Open sets the event-stream headers. The status line is sent with the
// first frame.
func Open(w http.ResponseWriter) (*Stream, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNoFlush
	}
	for k, v := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	} {
		w.Header().Set(k, v)
	}
	return &Stream{w: w, flush: f.Flush}, nil
}

// Event sends data as JSON under the given event name.
func (s *Stream) Event(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var frame bytes.Buffer
	frame.WriteString("event: " + name + "\n")
	frame.WriteString("data: ")
	frame.Write(payload)
	frame.WriteString("\n\n")
	return s.write(frame.Bytes())
}

// Comment sends a line clients ignore. Proxies see traffic and keep the
// stream open.
func (s *Stream) Comment(text string) error {
	return s.write([]byte(": " + text + "\n\n"))
}

// Retry tells the client how long to wait before reconnecting.
func (s *Stream) Retry(d time.Duration) error {
	return s.write([]byte("retry: " + strconv.FormatInt(d.Milliseconds(), 10) + "\n\n"))
}

func (s *Stream) write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flush()
	return nil
}
