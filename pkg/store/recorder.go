package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

// HistoryWriter is the write side of the history store.
type HistoryWriter interface {
	StartSession(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	LogMessage(ctx context.Context, sessionID uuid.UUID, role conversation.Role, content string, at time.Time) (uuid.UUID, error)
	EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time) error
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// QueueSize bounds pending writes. Default: 256.
	QueueSize int
	// WriteTimeout bounds each write. Default: 5s.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

type recordKind int

const (
	recordStart recordKind = iota
	recordMessage
	recordEnd
)

type record struct {
	kind    recordKind
	session uuid.UUID
	at      time.Time
	role    conversation.Role
	text    string
}

// Recorder writes session history in the background so the conversation
// never waits on the database. Writes are applied in order; when the queue
// is full new writes are dropped and counted.
type Recorder struct {
	w       HistoryWriter
	cfg     RecorderConfig
	logger  *slog.Logger
	queue   chan record
	dropped atomic.Int64
	failed  atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewRecorder(w HistoryWriter, cfg RecorderConfig) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		w:      w,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan record, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) SessionStarted(s *conversation.Session) {
	r.enqueue(record{kind: recordStart, session: s.ID, at: s.StartedAt})
}

func (r *Recorder) TurnAppended(s *conversation.Session, t conversation.Turn) {
	r.enqueue(record{kind: recordMessage, session: s.ID, at: t.At, role: t.Role, text: t.Text})
}

func (r *Recorder) SessionEnded(s *conversation.Session) {
	at, ok := s.EndedAt()
	if !ok {
		at = time.Now()
	}
	r.enqueue(record{kind: recordEnd, session: s.ID, at: at})
}

// Dropped is the number of writes discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Failed is the number of writes the store rejected.
func (r *Recorder) Failed() int64 {
	return r.failed.Load()
}

// Close stops accepting writes and waits for queued ones until ctx is done.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) enqueue(rec record) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
		r.logger.Warn("history queue full, dropping write", "session_id", rec.session.String())
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		if err := r.apply(rec); err != nil {
			r.failed.Add(1)
			r.logger.Error("history write failed", "session_id", rec.session.String(), "error", err)
		}
	}
}

func (r *Recorder) apply(rec record) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()
	switch rec.kind {
	case recordStart:
		return r.w.StartSession(ctx, rec.session, rec.at)
	case recordMessage:
		_, err := r.w.LogMessage(ctx, rec.session, rec.role, rec.text, rec.at)
		return err
	default:
		return r.w.EndSession(ctx, rec.session, rec.at)
	}
}
