package mw

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// AccessLog logs one line per request. Server errors log at error level and
// client errors at warn.
func AccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec.expose(), r)
		if logger == nil {
			return
		}

		level := slog.LevelInfo
		switch {
		case rec.status >= 500:
			level = slog.LevelError
		case rec.status >= 400:
			level = slog.LevelWarn
		}
		reqID, _ := RequestIDFrom(r.Context())
		logger.Log(r.Context(), level, "request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// recorder captures the status and body size of a response.
type recorder struct {
	http.ResponseWriter
	status  int
	bytes   int64
	written bool
}

func (rec *recorder) WriteHeader(code int) {
	if !rec.written {
		rec.status = code
		rec.written = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(p []byte) (int, error) {
	rec.written = true
	n, err := rec.ResponseWriter.Write(p)
	rec.bytes += int64(n)
	return n, err
}

func (rec *recorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

func (rec *recorder) flush() {
	rec.written = true
	rec.ResponseWriter.(http.Flusher).Flush()
}

func (rec *recorder) hijack() (net.Conn, *bufio.ReadWriter, error) {
	rec.written = true
	rec.status = http.StatusSwitchingProtocols
	return rec.ResponseWriter.(http.Hijacker).Hijack()
}

// The SSE writer needs http.Flusher and the websocket upgrader needs
// http.Hijacker, so the wrapper must offer exactly what the underlying
// writer offers.
type (
	flushRecorder     struct{ *recorder }
	hijackRecorder    struct{ *recorder }
	streamingRecorder struct{ *recorder }
)

func (f flushRecorder) Flush() { f.flush() }

func (h hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) { return h.hijack() }

func (s streamingRecorder) Flush() { s.flush() }

func (s streamingRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) { return s.hijack() }

func (rec *recorder) expose() http.ResponseWriter {
	_, canFlush := rec.ResponseWriter.(http.Flusher)
	_, canHijack := rec.ResponseWriter.(http.Hijacker)
	switch {
	case canFlush && canHijack:
		return streamingRecorder{rec}
	case canFlush:
		return flushRecorder{rec}
	case canHijack:
		return hijackRecorder{rec}
	}
	return rec
}
