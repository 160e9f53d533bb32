package orchestrator

import (
	"strings"
	"time"
)

const (
	FallbackReply    = "I'm sorry, I'm having trouble thinking right now."
	FallbackGreeting = "Hey! Good to see you."
	FallbackFarewell = "Goodbye!"
)

// DefaultStopPhrases end a session when spoken on their own.
var DefaultStopPhrases = []string{
	"bye",
	"goodbye",
	"stop",
	"goodnight",
	"good night",
	"you can rest now",
	"end",
	"shutdown",
}

// Config tunes the loop.
type Config struct {
	// SilenceTimeout ends an active session with no utterance activity. Default: 30s.
	SilenceTimeout time.Duration

	// PollInterval bounds how long one iteration waits for a frame. Default: 100ms.
	PollInterval time.Duration

	// IdleBackoff is slept when no frame arrived. Default: 10ms.
	IdleBackoff time.Duration

	// GenerateTimeout bounds each generator call. Default: 60s.
	GenerateTimeout time.Duration

	// SpeakTimeout bounds synthesis plus playback of one utterance. Default: 2m.
	SpeakTimeout time.Duration

	// StopPhrases are matched exactly after trimming and lower-casing.
	StopPhrases []string
}

// DefaultConfig returns the standard loop configuration.
func DefaultConfig() Config {
	return Config{
		SilenceTimeout:  30 * time.Second,
		PollInterval:    100 * time.Millisecond,
		IdleBackoff:     10 * time.Millisecond,
		GenerateTimeout: 60 * time.Second,
		SpeakTimeout:    2 * time.Minute,
		StopPhrases:     DefaultStopPhrases,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = def.SilenceTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.IdleBackoff < 0 {
		c.IdleBackoff = 0
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = def.GenerateTimeout
	}
	if c.SpeakTimeout <= 0 {
		c.SpeakTimeout = def.SpeakTimeout
	}
	if len(c.StopPhrases) == 0 {
		c.StopPhrases = def.StopPhrases
	}
	return c
}

func stopPhraseSet(phrases []string) map[string]struct{} {
	set := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		p = normalizePhrase(p)
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

func normalizePhrase(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
