package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// SinkConfig configures speaker playback.
type SinkConfig struct {
	Format Format
	// BufferSize is the device buffer; smaller is lower latency. Default: 100ms.
	BufferSize time.Duration
	Logger     *slog.Logger
}

// Sink plays PCM chunks on the default output device.
type Sink struct {
	logger *slog.Logger
	format Format
	otoCtx *oto.Context
	player *oto.Player
	buf    *playbackBuffer

	closeOnce sync.Once
}

// NewSink opens the output device.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if cfg.Format.SampleRate <= 0 || cfg.Format.Channels <= 0 {
		cfg.Format = PlaybackFormat
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.Format.SampleRate,
		ChannelCount: cfg.Format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   cfg.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	buf := newPlaybackBuffer(cfg.Format.BytesFor(2 * time.Second))
	player := otoCtx.NewPlayer(buf)
	player.Play()

	return &Sink{
		logger: cfg.Logger,
		format: cfg.Format,
		otoCtx: otoCtx,
		player: player,
		buf:    buf,
	}, nil
}

// Play writes every chunk and waits until the device has consumed them.
// When ctx ends first, pending audio is discarded.
func (s *Sink) Play(ctx context.Context, chunks <-chan []byte) error {
	total := 0
	start := time.Now()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if err := s.waitDrained(ctx); err != nil {
					s.buf.Flush()
					return err
				}
				s.logger.Debug("playback finished",
					"bytes", total,
					"audio_ms", s.format.Duration(total).Milliseconds(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
				return nil
			}
			total += len(chunk)
			s.buf.Write(chunk)
		case <-ctx.Done():
			s.buf.Flush()
			return ctx.Err()
		}
	}
}

func (s *Sink) waitDrained(ctx context.Context) error {
	if err := s.buf.WaitDrained(ctx, 10*time.Millisecond); err != nil {
		return err
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for s.player.BufferedSize() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.buf.Close()
		err = s.player.Close()
	})
	return err
}

// playbackBuffer is the io.Reader pulled by the device player.
type playbackBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newPlaybackBuffer(capacity int) *playbackBuffer {
	b := &playbackBuffer{buf: make([]byte, 0, capacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *playbackBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.buf = append(b.buf, p...)
	b.cond.Broadcast()
}

// Read blocks until audio is available. After Close it returns silence so
// the player drains without error.
func (b *playbackBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.buf) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.buf) == 0 {
		clear(p)
		return len(p), nil
	}
	n := copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

func (b *playbackBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// WaitDrained polls until every written byte has been read.
func (b *playbackBuffer) WaitDrained(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for b.Pending() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Flush discards pending audio.
func (b *playbackBuffer) Flush() {
	b.mu.Lock()
	b.buf = b.buf[:0]
	b.mu.Unlock()
}

func (b *playbackBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}
