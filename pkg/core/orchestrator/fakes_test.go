package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSource struct {
	mu      sync.Mutex
	frames  [][]byte
	started bool
	stopped bool
	closed  bool
}

func (s *fakeSource) push(frames ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range frames {
		s.frames = append(s.frames, []byte(f))
	}
}

func (s *fakeSource) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) NextFrame(time.Duration) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil, false
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, true
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	plays  int
	bytes  int
	gate   chan struct{}
	closed bool
}

func (s *fakeSink) Play(ctx context.Context, chunks <-chan []byte) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n := 0
	for c := range chunks {
		n += len(c)
	}
	s.mu.Lock()
	s.plays++
	s.bytes += n
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

type fakeWake struct {
	mu     sync.Mutex
	calls  int
	closed bool
}

func (w *fakeWake) Process(frame []byte) bool {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	return string(frame) == "wake"
}

func (w *fakeWake) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

// fakeRecognizer returns a queued transcript for each frame whose content
// matches a key in results.
type fakeRecognizer struct {
	mu       sync.Mutex
	results  map[string]conversation.Transcript
	speaking bool
	frames   int
	starts   int
	stops    int
	active   bool
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{results: make(map[string]conversation.Transcript)}
}

func (r *fakeRecognizer) Start() {
	r.mu.Lock()
	r.starts++
	r.active = true
	r.mu.Unlock()
}

func (r *fakeRecognizer) Stop() {
	r.mu.Lock()
	r.stops++
	r.active = false
	r.mu.Unlock()
}

func (r *fakeRecognizer) ProcessFrame(frame []byte) (conversation.Transcript, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	res, ok := r.results[string(frame)]
	return res, ok
}

func (r *fakeRecognizer) IsSpeaking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speaking
}

func (r *fakeRecognizer) setSpeaking(v bool) {
	r.mu.Lock()
	r.speaking = v
	r.mu.Unlock()
}

func (r *fakeRecognizer) final(frame, text string) {
	r.mu.Lock()
	r.results[frame] = conversation.Transcript{Text: text, Final: true}
	r.mu.Unlock()
}

func (r *fakeRecognizer) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

type replyCall struct {
	history []conversation.Turn
	text    string
}

type fakeGenerator struct {
	mu        sync.Mutex
	greeting  string
	reply     string
	farewell  string
	panicOn   string
	// hang makes Reply wait for its context to end.
	hang      bool
	replies   []replyCall
	farewells []string
}

func (g *fakeGenerator) Reply(ctx context.Context, history []conversation.Turn, text string) string {
	g.mu.Lock()
	if g.panicOn == "reply" {
		g.mu.Unlock()
		panic("generation exploded")
	}
	g.replies = append(g.replies, replyCall{history: history, text: text})
	hang, reply := g.hang, g.reply
	g.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ""
	}
	return reply
}

func (g *fakeGenerator) Greeting(context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.panicOn == "greeting" {
		panic("greeting exploded")
	}
	return g.greeting
}

func (g *fakeGenerator) Farewell(_ context.Context, text string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.farewells = append(g.farewells, text)
	return g.farewell
}

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	fail  bool
}

func (s *fakeSynth) Stream(_ context.Context, text string) <-chan []byte {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return nil
	}
	ch := make(chan []byte, 2)
	ch <- []byte(text)
	close(ch)
	return ch
}

func (s *fakeSynth) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	started int
	ended   int
	turns   []conversation.Turn
}

func (r *fakeRecorder) SessionStarted(*conversation.Session) {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
}

func (r *fakeRecorder) TurnAppended(_ *conversation.Session, t conversation.Turn) {
	r.mu.Lock()
	r.turns = append(r.turns, t)
	r.mu.Unlock()
}

func (r *fakeRecorder) SessionEnded(*conversation.Session) {
	r.mu.Lock()
	r.ended++
	r.mu.Unlock()
}

type harness struct {
	o          *Orchestrator
	clock      *fakeClock
	source     *fakeSource
	sink       *fakeSink
	wake       *fakeWake
	recognizer *fakeRecognizer
	generator  *fakeGenerator
	synth      *fakeSynth
	recorder   *fakeRecorder

	mu          sync.Mutex
	transitions []string
}

func newHarness(t interface{ Fatalf(string, ...any) }) *harness {
	h := &harness{
		clock:      newFakeClock(),
		source:     &fakeSource{},
		sink:       &fakeSink{},
		wake:       &fakeWake{},
		recognizer: newFakeRecognizer(),
		generator: &fakeGenerator{
			greeting: "Hey you!",
			reply:    "Why did the gopher cross the road?",
			farewell: "Sleep well!",
		},
		synth:    &fakeSynth{},
		recorder: &fakeRecorder{},
	}
	cfg := DefaultConfig()
	cfg.IdleBackoff = 0
	cfg.PollInterval = time.Millisecond

	o, err := New(cfg, Deps{
		Source:      h.source,
		Sink:        h.sink,
		Wake:        h.wake,
		Recognizer:  h.recognizer,
		Generator:   h.generator,
		Synthesizer: h.synth,
		Recorder:    h.recorder,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         h.clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.o = o
	o.Subscribe(func(from, to conversation.State) {
		h.mu.Lock()
		h.transitions = append(h.transitions, from.String()+"->"+to.String())
		h.mu.Unlock()
	})
	return h
}

// feed pushes frame and runs one iteration, waiting for any procedure it starts.
func (h *harness) feed(frame string) {
	h.source.push(frame)
	h.o.step(context.Background())
	h.o.wait()
}

func (h *harness) takeTransitions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.transitions
	h.transitions = nil
	return out
}

// wakeUp runs the greeting flow and clears recorded transitions.
func (h *harness) wakeUp() {
	h.feed("wake")
	h.takeTransitions()
}
