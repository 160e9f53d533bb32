package stt

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
)

// DefaultWakePhrases are matched when none are configured.
var DefaultWakePhrases = []string{"hello love"}

// WakeConfig configures a WakeDetector.
type WakeConfig struct {
	Phrases    []string
	Model      string
	Language   string
	SampleRate int
	// Backoff delays reconnecting after a failed stream. Default: 5s.
	Backoff time.Duration
	// Window caps the heard text kept for matching. Default: 256 chars.
	Window int
	Logger *slog.Logger
}

// WakeDetector listens for a wake phrase on a streaming transcription
// session. The session is opened lazily and reopened after each detection.
type WakeDetector struct {
	streamer Streamer
	cfg      WakeConfig
	phrases  []string
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	stream  *Session
	heard   string
	partial string
	retryAt time.Time
}

func NewWakeDetector(s Streamer, cfg WakeConfig) *WakeDetector {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 256
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	phrases := make([]string, 0, len(cfg.Phrases))
	for _, p := range cfg.Phrases {
		if n := normalizeText(p); n != "" {
			phrases = append(phrases, n)
		}
	}
	if len(phrases) == 0 {
		for _, p := range DefaultWakePhrases {
			phrases = append(phrases, normalizeText(p))
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WakeDetector{
		streamer: s,
		cfg:      cfg,
		phrases:  phrases,
		logger:   logger,
		now:      time.Now,
	}
}

// Phrases returns the normalized phrases being matched.
func (d *WakeDetector) Phrases() []string {
	return append([]string(nil), d.phrases...)
}

// Process forwards one frame and reports whether a wake phrase has been
// heard. It never waits for the transcription service.
func (d *WakeDetector) Process(frame []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.ensureStreamLocked()
	if s == nil {
		return false
	}
	if err := s.Send(frame); err != nil {
		d.dropStreamLocked(err)
		return false
	}

	for {
		select {
		case res, ok := <-s.Results():
			if !ok {
				d.dropStreamLocked(s.Err())
				return false
			}
			if d.observeLocked(res) {
				d.logger.Info("wake phrase detected")
				d.resetLocked()
				return true
			}
		default:
			return false
		}
	}
}

// Close ends the streaming session.
func (d *WakeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	err := d.stream.Close()
	d.stream = nil
	return err
}

func (d *WakeDetector) ensureStreamLocked() *Session {
	if d.stream != nil {
		return d.stream
	}
	if d.now().Before(d.retryAt) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := d.streamer.Open(ctx, Options{
		Model:      d.cfg.Model,
		Language:   d.cfg.Language,
		SampleRate: d.cfg.SampleRate,
	})
	if err != nil {
		d.retryAt = d.now().Add(d.cfg.Backoff)
		d.logger.Warn("wake stream connect failed", "error", err, "retry_in", d.cfg.Backoff.String())
		return nil
	}
	d.stream = s
	return s
}

func (d *WakeDetector) dropStreamLocked(err error) {
	if d.stream != nil {
		_ = d.stream.Close()
		d.stream = nil
	}
	d.heard, d.partial = "", ""
	d.retryAt = d.now().Add(d.cfg.Backoff)
	if err != nil {
		d.logger.Warn("wake stream lost", "error", err)
	}
}

// resetLocked closes the stream so transcripts queued behind a detection
// cannot trigger again.
func (d *WakeDetector) resetLocked() {
	if d.stream != nil {
		_ = d.stream.Close()
		d.stream = nil
	}
	d.heard, d.partial = "", ""
	d.retryAt = time.Time{}
}

func (d *WakeDetector) observeLocked(res Result) bool {
	text := normalizeText(res.Text)
	if res.Final {
		d.heard = strings.TrimSpace(d.heard + " " + text)
		d.heard = trimToWindow(d.heard, d.cfg.Window)
		d.partial = ""
	} else {
		d.partial = text
	}
	window := " " + strings.TrimSpace(d.heard+" "+d.partial) + " "
	for _, p := range d.phrases {
		if strings.Contains(window, " "+p+" ") {
			return true
		}
	}
	return false
}

// trimToWindow keeps at most max trailing bytes of s, starting on a word
// boundary so no word or rune is split.
func trimToWindow(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := len(s) - max
	if s[cut-1] == ' ' {
		return s[cut:]
	}
	if i := strings.IndexByte(s[cut:], ' '); i >= 0 {
		return s[cut+i+1:]
	}
	return ""
}

// normalizeText lowercases s and reduces it to space-separated words.
func normalizeText(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	return strings.Join(fields, " ")
}
