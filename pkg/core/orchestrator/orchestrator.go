// Package orchestrator runs the voice companion's main loop. It owns the
// conversation state machine, decides which collaborator may touch the
// audio at any instant, and sequences greeting, turn, and stop procedures.
//
// The loop is a single goroutine. A busy procedure (greeting, turn, or stop)
// runs on its own goroutine while the loop keeps draining and dropping
// capture frames; at most one procedure is in flight and the loop state is
// handed to it exclusively until it returns.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

var (
	// ErrStopped is returned by StartSession once Run has exited.
	ErrStopped = errors.New("orchestrator stopped")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("orchestrator already running")
)

// Deps are the collaborators driven by the loop. Source, Sink, Wake,
// Recognizer, Generator and Synthesizer are required.
type Deps struct {
	Source      AudioSource
	Sink        AudioSink
	Wake        WakeWordDetector
	Recognizer  SpeechRecognizer
	Generator   ResponseGenerator
	Synthesizer SpeechSynthesizer

	Recorder Recorder
	Observer Observer
	Machine  *conversation.Machine
	Logger   *slog.Logger
	Now      func() time.Time
}

// loopState is owned by the loop goroutine and lent to one procedure at a time.
type loopState struct {
	session      *conversation.Session
	lastActivity time.Time
}

type startRequest struct {
	reply chan bool
}

// Orchestrator is the session orchestration loop.
type Orchestrator struct {
	cfg         Config
	stopPhrases map[string]struct{}

	source      AudioSource
	sink        AudioSink
	wake        WakeWordDetector
	recognizer  SpeechRecognizer
	generator   ResponseGenerator
	synthesizer SpeechSynthesizer
	recorder    Recorder
	observer    Observer
	machine     *conversation.Machine
	logger      *slog.Logger
	now         func() time.Time

	loop loopState
	busy chan struct{}

	startReqs chan startRequest
	done      chan struct{}
	running   atomic.Bool
	dropped   atomic.Int64
}

// New validates deps and returns an orchestrator in IDLE.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("orchestrator: audio source is required")
	case deps.Sink == nil:
		return nil, errors.New("orchestrator: audio sink is required")
	case deps.Wake == nil:
		return nil, errors.New("orchestrator: wake word detector is required")
	case deps.Recognizer == nil:
		return nil, errors.New("orchestrator: speech recognizer is required")
	case deps.Generator == nil:
		return nil, errors.New("orchestrator: response generator is required")
	case deps.Synthesizer == nil:
		return nil, errors.New("orchestrator: speech synthesizer is required")
	}

	cfg = cfg.withDefaults()
	o := &Orchestrator{
		cfg:         cfg,
		stopPhrases: stopPhraseSet(cfg.StopPhrases),
		source:      deps.Source,
		sink:        deps.Sink,
		wake:        deps.Wake,
		recognizer:  deps.Recognizer,
		generator:   deps.Generator,
		synthesizer: deps.Synthesizer,
		recorder:    deps.Recorder,
		observer:    deps.Observer,
		machine:     deps.Machine,
		logger:      deps.Logger,
		now:         deps.Now,
		startReqs:   make(chan startRequest),
		done:        make(chan struct{}),
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.machine == nil {
		o.machine = conversation.NewMachine(o.logger)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Status returns the current conversation state.
func (o *Orchestrator) Status() conversation.State {
	return o.machine.State()
}

// Subscribe registers a state listener on the underlying machine.
func (o *Orchestrator) Subscribe(l conversation.Listener) func() {
	return o.machine.Subscribe(l)
}

// DroppedFrames is the number of capture frames discarded while busy.
func (o *Orchestrator) DroppedFrames() int64 {
	return o.dropped.Load()
}

// StartSession behaves like a wake detection. It reports false when a
// session is already active. It blocks until the running loop accepts the
// request.
func (o *Orchestrator) StartSession(ctx context.Context) (bool, error) {
	req := startRequest{reply: make(chan bool, 1)}
	select {
	case o.startReqs <- req:
	case <-o.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case started := <-req.reply:
		return started, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Run drives the loop until ctx is canceled. Any in-flight procedure is
// allowed to finish before collaborators are torn down.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if err := o.source.Start(); err != nil {
		close(o.done)
		return fmt.Errorf("start audio source: %w", err)
	}
	defer o.teardown()

	o.logger.Info("orchestrator started", "silence_timeout", o.cfg.SilenceTimeout)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping")
			return nil
		default:
		}
		o.step(ctx)
	}
}

// step runs one loop iteration.
func (o *Orchestrator) step(ctx context.Context) {
	if o.busy != nil {
		select {
		case <-o.busy:
			o.busy = nil
		default:
		}
	}

	select {
	case req := <-o.startReqs:
		if o.busy != nil && o.machine.State() == conversation.StateIdle {
			// a stop procedure is returning
			o.wait()
		}
		req.reply <- o.beginSession(ctx, "manual")
		return
	default:
	}

	frame, ok := o.source.NextFrame(o.cfg.PollInterval)
	if !ok {
		if o.cfg.IdleBackoff > 0 {
			time.Sleep(o.cfg.IdleBackoff)
		}
		return
	}

	if o.busy != nil {
		o.dropFrame()
		return
	}

	switch o.machine.State() {
	case conversation.StateIdle:
		if o.detectWake(frame) {
			o.beginSession(ctx, "wake")
		}
	case conversation.StateActiveSession:
		o.listen(ctx, frame)
	default:
		o.dropFrame()
	}
}

func (o *Orchestrator) dropFrame() {
	o.dropped.Add(1)
	o.observer.FramesDropped(1)
}

func (o *Orchestrator) detectWake(frame []byte) (detected bool) {
	o.guard("wake.process", func() { detected = o.wake.Process(frame) })
	return detected
}

// beginSession opens a session from IDLE and starts the greeting. It reports
// false when a session is already active.
func (o *Orchestrator) beginSession(ctx context.Context, trigger string) bool {
	if o.busy != nil || !o.machine.WakeDetected() {
		return false
	}
	now := o.now()
	o.loop.session = conversation.NewSession(now)
	o.loop.lastActivity = now
	o.logger.Info("session started", "session_id", o.loop.session.ID, "trigger", trigger)
	o.recorder.SessionStarted(o.loop.session)
	o.observer.SessionStarted(trigger)

	o.spawn(ctx, o.greet)
	return true
}

// listen feeds one frame to the recognizer. A final transcript is handled
// before the silence timeout is considered.
func (o *Orchestrator) listen(ctx context.Context, frame []byte) {
	var (
		res conversation.Transcript
		ok  bool
	)
	o.guard("recognizer.process_frame", func() { res, ok = o.recognizer.ProcessFrame(frame) })

	if ok && res.Final {
		o.loop.lastActivity = o.now()
		if !res.Empty() {
			text := res.Text
			o.spawn(ctx, func(ctx context.Context, ls *loopState) { o.turn(ctx, ls, text) })
			return
		}
	} else if ok && !res.Empty() {
		o.logger.Debug("partial transcript", "text", res.Text)
	}

	speaking := false
	o.guard("recognizer.is_speaking", func() { speaking = o.recognizer.IsSpeaking() })
	if speaking {
		return
	}
	if o.now().Sub(o.loop.lastActivity) >= o.cfg.SilenceTimeout {
		o.logger.Info("silence timeout", "timeout", o.cfg.SilenceTimeout)
		o.endSession(&o.loop, "silence_timeout")
	}
}

// spawn runs fn as the single in-flight busy procedure. The procedure gets
// a context that survives loop shutdown; each collaborator call carries its
// own timeout instead.
func (o *Orchestrator) spawn(ctx context.Context, fn func(context.Context, *loopState)) {
	busy := make(chan struct{})
	o.busy = busy
	procCtx := context.WithoutCancel(ctx)
	ls := &o.loop
	go func() {
		defer close(busy)
		defer func() {
			if v := recover(); v != nil {
				o.logger.Error("procedure panic", "panic", v)
				o.endSession(ls, "procedure_panic")
			}
		}()
		fn(procCtx, ls)
	}()
}

// wait blocks until the in-flight procedure, if any, has returned.
func (o *Orchestrator) wait() {
	if o.busy != nil {
		<-o.busy
		o.busy = nil
	}
}

func (o *Orchestrator) teardown() {
	o.wait()
	if o.machine.State() != conversation.StateIdle {
		o.endSession(&o.loop, "shutdown")
	}
	o.guard("recognizer.stop", o.recognizer.Stop)
	if err := o.source.Stop(); err != nil {
		o.logger.Warn("stop audio source", "error", err)
	}
	if err := o.source.Close(); err != nil {
		o.logger.Warn("close audio source", "error", err)
	}
	if err := o.sink.Close(); err != nil {
		o.logger.Warn("close audio sink", "error", err)
	}
	if err := o.wake.Close(); err != nil {
		o.logger.Warn("close wake word detector", "error", err)
	}
	close(o.done)
	o.logger.Info("orchestrator stopped", "dropped_frames", o.dropped.Load())
}

// guard runs a collaborator call, converting a panic into a logged failure.
func (o *Orchestrator) guard(op string, fn func()) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			o.logger.Error("collaborator panic", "op", op, "panic", v)
			ok = false
		}
	}()
	fn()
	return true
}
