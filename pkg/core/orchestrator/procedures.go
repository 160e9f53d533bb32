package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

// greet runs the wake-greeting procedure.
func (o *Orchestrator) greet(ctx context.Context, ls *loopState) {
	text := o.greeting(ctx)
	o.appendTurn(ls, conversation.RoleAssistant, text)
	o.speak(ctx, text)
	o.resumeListening(ls)
}

// turn handles one final transcript.
func (o *Orchestrator) turn(ctx context.Context, ls *loopState, text string) {
	text = strings.TrimSpace(text)
	if text == "" || ls.session == nil {
		return
	}
	if o.isStopPhrase(text) {
		o.stop(ctx, ls, text)
		return
	}

	started := o.now()
	o.appendTurn(ls, conversation.RoleUser, text)
	history := ls.session.Memory.Turns()

	o.machine.StartThinking()
	reply := o.reply(ctx, history, text)
	o.appendTurn(ls, conversation.RoleAssistant, reply)

	o.speak(ctx, reply)
	o.resumeListening(ls)
	o.observer.TurnCompleted(o.now().Sub(started))
}

// stop says a farewell and ends the session.
func (o *Orchestrator) stop(ctx context.Context, ls *loopState, text string) {
	o.logger.Info("stop phrase", "session_id", ls.session.ID, "text", text)
	o.recorder.TurnAppended(ls.session, conversation.Turn{Role: conversation.RoleUser, Text: text, At: o.now()})

	o.machine.StartThinking()
	farewell := o.farewell(ctx, text)
	o.recorder.TurnAppended(ls.session, conversation.Turn{Role: conversation.RoleAssistant, Text: farewell, At: o.now()})

	o.speak(ctx, farewell)
	o.endSession(ls, "stop_phrase")
}

// endSession stops recognition, resets the machine to IDLE and closes the
// session. Repeated calls only repeat the no-op transition.
func (o *Orchestrator) endSession(ls *loopState, reason string) {
	o.guard("recognizer.stop", o.recognizer.Stop)
	o.machine.SessionEnd()

	s := ls.session
	if s == nil {
		return
	}
	now := o.now()
	if !s.End(now) {
		return
	}
	o.logger.Info("session ended", "session_id", s.ID, "reason", reason, "duration_ms", s.Duration(now).Milliseconds())
	o.recorder.SessionEnded(s)
	o.observer.SessionEnded(reason, s.Duration(now))
}

// speak moves to SPEAKING, silences the recognizer, and plays text.
// Synthesis or playback failures leave nothing played.
func (o *Orchestrator) speak(ctx context.Context, text string) {
	o.machine.StartSpeaking()
	o.guard("recognizer.stop", o.recognizer.Stop)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.SpeakTimeout)
	defer cancel()

	var chunks <-chan []byte
	if !o.guard("synthesizer.stream", func() { chunks = o.synthesizer.Stream(ctx, text) }) || chunks == nil {
		o.observer.Fallback("synthesize")
		return
	}

	var err error
	o.guard("sink.play", func() { err = o.sink.Play(ctx, chunks) })
	if err != nil {
		o.logger.Warn("playback failed", "error", err)
	}
}

// resumeListening returns to ACTIVE_SESSION after speaking.
func (o *Orchestrator) resumeListening(ls *loopState) {
	o.machine.FinishSpeaking()
	o.guard("recognizer.start", o.recognizer.Start)
	ls.lastActivity = o.now()
}

func (o *Orchestrator) appendTurn(ls *loopState, role conversation.Role, text string) {
	if ls.session == nil {
		return
	}
	t := conversation.Turn{Role: role, Text: text, At: o.now()}
	ls.session.Memory.Append(t)
	o.recorder.TurnAppended(ls.session, t)
}

func (o *Orchestrator) isStopPhrase(text string) bool {
	_, ok := o.stopPhrases[normalizePhrase(text)]
	return ok
}

func (o *Orchestrator) greeting(ctx context.Context) string {
	return o.generate(ctx, "greeting", FallbackGreeting, func(ctx context.Context) string {
		return o.generator.Greeting(ctx)
	})
}

func (o *Orchestrator) reply(ctx context.Context, history []conversation.Turn, text string) string {
	return o.generate(ctx, "reply", FallbackReply, func(ctx context.Context) string {
		return o.generator.Reply(ctx, history, text)
	})
}

func (o *Orchestrator) farewell(ctx context.Context, text string) string {
	return o.generate(ctx, "farewell", FallbackFarewell, func(ctx context.Context) string {
		return o.generator.Farewell(ctx, text)
	})
}

// generate calls fn with a timeout and substitutes fallback for a panic or
// an empty result.
func (o *Orchestrator) generate(ctx context.Context, op, fallback string, fn func(context.Context) string) string {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
	defer cancel()

	start := time.Now()
	var out string
	o.guard("generator."+op, func() { out = fn(ctx) })
	out = strings.TrimSpace(out)
	if out == "" {
		o.logger.Warn("generator returned no text", "op", op, "duration_ms", time.Since(start).Milliseconds())
		o.observer.Fallback(op)
		return fallback
	}
	return out
}
