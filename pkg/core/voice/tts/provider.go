// Package tts turns reply text into PCM audio using the ElevenLabs
// stream-input websocket.
package tts

import (
	"context"
	"sync"
)

// StreamProvider synthesizes one utterance into a stream of PCM chunks.
type StreamProvider interface {
	SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*Stream, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string // ElevenLabs voice id, required
	Model      string // default: eleven_flash_v2_5
	SampleRate int    // PCM output rate, default: 24000
}

// Stream is the audio of one utterance. Chunks is closed after the final
// chunk, on a provider error, or once the consumer calls Close.
type Stream struct {
	chunks chan []byte
	stop   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func newStream() *Stream {
	return &Stream{
		chunks: make(chan []byte, 64),
		stop:   make(chan struct{}),
	}
}

func (s *Stream) Chunks() <-chan []byte {
	return s.chunks
}

// Err reports why the stream ended early. It is stable once Chunks is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close abandons the stream. The producer notices at its next delivery.
func (s *Stream) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// stopped is closed by Close.
func (s *Stream) stopped() <-chan struct{} {
	return s.stop
}

func (s *Stream) deliver(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.stop:
		return false
	}
}

// fail keeps the first error.
func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// finish closes Chunks; only the producer calls it.
func (s *Stream) finish() {
	close(s.chunks)
}
