package tts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Synthesizer adapts a StreamProvider to a plain chunk channel. Failures
// are logged and reported as a nil channel.
type Synthesizer struct {
	provider StreamProvider
	opts     SynthesizeOptions
	logger   *slog.Logger
}

func NewSynthesizer(p StreamProvider, opts SynthesizeOptions, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{provider: p, opts: opts, logger: logger}
}

// Stream starts synthesis of text. The returned channel is closed when the
// audio ends or ctx is done.
func (s *Synthesizer) Stream(ctx context.Context, text string) <-chan []byte {
	out := make(chan []byte, 16)
	text = strings.TrimSpace(text)
	if text == "" {
		close(out)
		return out
	}

	start := time.Now()
	stream, err := s.provider.SynthesizeStream(ctx, text, s.opts)
	if err != nil {
		s.logger.Warn("synthesis failed", "error", err, "chars", len(text))
		return nil
	}

	go func() {
		defer close(out)
		defer stream.Close()

		first := true
		var bytes int
		for chunk := range stream.Chunks() {
			if first {
				s.logger.Debug("synthesis first audio", "latency_ms", time.Since(start).Milliseconds())
				first = false
			}
			bytes += len(chunk)
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("synthesis stream ended with error", "error", err, "bytes", bytes)
		}
	}()
	return out
}
