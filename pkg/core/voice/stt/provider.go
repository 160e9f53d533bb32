// Package stt provides speech-to-text: a Cartesia client for utterance and
// streaming transcription, an utterance Recognizer, and a streaming
// wake-phrase detector. All audio is 16-bit little-endian mono PCM.
package stt

import "context"

// Transcriber converts one complete utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, opts Options) (string, error)
}

// Streamer opens a live transcription session.
type Streamer interface {
	Open(ctx context.Context, opts Options) (*Session, error)
}

type Options struct {
	Model      string // default: ink-whisper
	Language   string // default: en
	SampleRate int    // default: 16000
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = defaultModel
	}
	if o.Language == "" {
		o.Language = "en"
	}
	if o.SampleRate <= 0 {
		o.SampleRate = 16000
	}
	return o
}

// Result is one transcript update from a streaming session. Interim results
// are replaced by later ones until Final is set.
type Result struct {
	Text  string
	Final bool
}
