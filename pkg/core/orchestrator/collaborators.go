package orchestrator

import (
	"context"
	"time"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

// AudioSource produces fixed-size PCM frames from a capture device.
type AudioSource interface {
	Start() error
	// NextFrame waits up to wait for a frame. A false result means no frame
	// was available yet; it is not an error.
	NextFrame(wait time.Duration) ([]byte, bool)
	Stop() error
	Close() error
}

// AudioSink renders PCM chunks. Play blocks until chunks is exhausted and
// the audio has been submitted to the device, or ctx is done.
type AudioSink interface {
	Play(ctx context.Context, chunks <-chan []byte) error
	Close() error
}

// WakeWordDetector reports whether a wake phrase just completed.
type WakeWordDetector interface {
	Process(frame []byte) bool
	Close() error
}

// SpeechRecognizer segments speech internally and yields transcripts.
type SpeechRecognizer interface {
	Start()
	// Stop discards any partially buffered utterance.
	Stop()
	ProcessFrame(frame []byte) (conversation.Transcript, bool)
	// IsSpeaking is true while an utterance is being buffered.
	IsSpeaking() bool
}

// ResponseGenerator produces assistant text. Implementations return a
// fallback string rather than failing.
type ResponseGenerator interface {
	Reply(ctx context.Context, history []conversation.Turn, userText string) string
	Greeting(ctx context.Context) string
	Farewell(ctx context.Context, userText string) string
}

// SpeechSynthesizer turns text into a lazy, finite stream of audio chunks.
// A nil channel means there is nothing to play.
type SpeechSynthesizer interface {
	Stream(ctx context.Context, text string) <-chan []byte
}

// Recorder persists the transcript. Calls must not block the caller.
type Recorder interface {
	SessionStarted(s *conversation.Session)
	TurnAppended(s *conversation.Session, turn conversation.Turn)
	SessionEnded(s *conversation.Session)
}

// Observer receives operational signals, typically for metrics.
type Observer interface {
	SessionStarted(trigger string)
	SessionEnded(reason string, duration time.Duration)
	TurnCompleted(duration time.Duration)
	Fallback(op string)
	FramesDropped(n int)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted(*conversation.Session)                  {}
func (nopRecorder) TurnAppended(*conversation.Session, conversation.Turn) {}
func (nopRecorder) SessionEnded(*conversation.Session)                    {}

type nopObserver struct{}

func (nopObserver) SessionStarted(string)              {}
func (nopObserver) SessionEnded(string, time.Duration) {}
func (nopObserver) TurnCompleted(time.Duration)        {}
func (nopObserver) Fallback(string)                    {}
func (nopObserver) FramesDropped(int)                  {}
