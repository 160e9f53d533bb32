package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

const (
	DefaultStateKey     = "vai-friend:state"
	DefaultStateChannel = "vai-friend:state-events"
)

// RedisReader reads the mirrored state.
type RedisReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// ReadState returns the mirrored status word, or ErrNotFound when nothing
// has been mirrored under key.
func ReadState(ctx context.Context, r RedisReader, key string) (string, error) {
	if key == "" {
		key = DefaultStateKey
	}
	val, err := r.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}

// RedisWriter is the slice of the go-redis client the mirror uses.
type RedisWriter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// MirrorConfig configures a StateMirror.
type MirrorConfig struct {
	Key     string
	Channel string
	// TTL expires the mirrored state. Zero keeps it until overwritten.
	TTL time.Duration
	// Timeout bounds each Redis round trip. Default: 2s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// StateEvent is the payload published on every transition.
type StateEvent struct {
	State string    `json:"state"`
	From  string    `json:"from"`
	At    time.Time `json:"at"`
}

// StateMirror copies conversation state into Redis. State changes are
// coalesced: if Redis is slow only the latest state is written.
type StateMirror struct {
	client RedisWriter
	cfg    MirrorConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending *StateEvent
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func NewStateMirror(client RedisWriter, cfg MirrorConfig) *StateMirror {
	if cfg.Key == "" {
		cfg.Key = DefaultStateKey
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultStateChannel
	}
	if cfg.TTL < 0 {
		cfg.TTL = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &StateMirror{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Observe is a conversation.Listener. It never blocks on Redis.
func (m *StateMirror) Observe(from, to conversation.State) {
	m.mu.Lock()
	m.pending = &StateEvent{State: to.Status(), From: from.Status(), At: m.now().UTC()}
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Close flushes the latest state and stops the writer.
func (m *StateMirror) Close() error {
	m.once.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *StateMirror) run() {
	defer close(m.done)
	for {
		select {
		case <-m.wake:
			m.flush()
		case <-m.stop:
			m.flush()
			return
		}
	}
}

func (m *StateMirror) flush() {
	m.mu.Lock()
	ev := m.pending
	m.pending = nil
	m.mu.Unlock()
	if ev == nil {
		return
	}
	if err := m.write(*ev); err != nil {
		m.logger.Warn("state mirror write failed", "state", ev.State, "error", err)
	}
}

func (m *StateMirror) write(ev StateEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()
	if err := m.client.Set(ctx, m.cfg.Key, ev.State, m.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("set %s: %w", m.cfg.Key, err)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := m.client.Publish(ctx, m.cfg.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", m.cfg.Channel, err)
	}
	return nil
}
