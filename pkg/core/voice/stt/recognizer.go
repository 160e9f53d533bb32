package stt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/vai-friend/pkg/core/audio"
	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

// RecognizerConfig configures a Recognizer.
type RecognizerConfig struct {
	Segmenter audio.SegmenterConfig
	Model     string
	Language  string
	// Timeout bounds one transcription request. Default: 15s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Recognizer turns captured frames into final transcripts. Utterances are
// cut by energy and sent to the transcriber whole, one at a time, on a
// background goroutine; a finished transcript is returned by the next
// ProcessFrame call.
type Recognizer struct {
	transcriber Transcriber
	cfg         RecognizerConfig
	logger      *slog.Logger

	mu     sync.Mutex
	seg    *audio.Segmenter
	active bool
	// epoch changes on Start and Stop so late results are dropped.
	epoch    uint64
	cancel   context.CancelFunc
	queued   [][]byte
	finished []conversation.Transcript
}

func NewRecognizer(t Transcriber, cfg RecognizerConfig) *Recognizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Segmenter.Format.SampleRate <= 0 {
		cfg.Segmenter = audio.DefaultSegmenterConfig(audio.CaptureFormat)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{
		transcriber: t,
		cfg:         cfg,
		logger:      logger,
		seg:         audio.NewSegmenter(cfg.Segmenter),
	}
}

// Start begins accepting frames.
func (r *Recognizer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
	r.active = true
}

// Stop discards any partial utterance, abandons pending transcriptions and
// ignores frames until Start.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
	r.active = false
}

func (r *Recognizer) resetLocked() {
	r.epoch++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.queued, r.finished = nil, nil
	r.seg.Reset()
}

// ProcessFrame never waits on the network. It returns the oldest finished
// transcript, if any. A failed transcription yields nothing.
func (r *Recognizer) ProcessFrame(frame []byte) (conversation.Transcript, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return conversation.Transcript{}, false
	}
	if utterance, done := r.seg.Push(frame); done {
		r.queued = append(r.queued, utterance)
		r.dispatchLocked()
	}
	if len(r.finished) == 0 {
		return conversation.Transcript{}, false
	}
	tr := r.finished[0]
	r.finished = r.finished[1:]
	return tr, true
}

func (r *Recognizer) dispatchLocked() {
	if r.cancel != nil || len(r.queued) == 0 {
		return
	}
	utterance := r.queued[0]
	r.queued = r.queued[1:]
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	r.cancel = cancel
	go r.transcribe(ctx, r.epoch, utterance)
}

func (r *Recognizer) transcribe(ctx context.Context, epoch uint64, utterance []byte) {
	start := time.Now()
	text, err := r.transcriber.Transcribe(ctx, utterance, Options{
		Model:      r.cfg.Model,
		Language:   r.cfg.Language,
		SampleRate: r.cfg.Segmenter.Format.SampleRate,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch != r.epoch {
		return
	}
	r.cancel()
	r.cancel = nil

	if err != nil {
		r.logger.Warn("transcription failed",
			"error", err,
			"audio", r.cfg.Segmenter.Format.Duration(len(utterance)).String(),
		)
	} else {
		r.logger.Debug("utterance transcribed",
			"chars", len(text),
			"latency_ms", time.Since(start).Milliseconds(),
		)
		r.finished = append(r.finished, conversation.Transcript{Text: text, Final: true})
	}
	r.dispatchLocked()
}

// IsSpeaking reports whether an utterance is in progress or still waiting
// on its transcript.
func (r *Recognizer) IsSpeaking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return false
	}
	return r.seg.InSpeech() || r.cancel != nil || len(r.queued) > 0 || len(r.finished) > 0
}
