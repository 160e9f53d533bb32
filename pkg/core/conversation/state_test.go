package conversation

import (
	"io"
	"log/slog"
	"testing"

	"pgregory.net/rapid"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var allStates = []State{StateIdle, StateActiveSession, StateThinking, StateSpeaking}

var allTriggers = []Trigger{
	TriggerWakeDetected,
	TriggerSessionActive,
	TriggerStartThinking,
	TriggerStartSpeaking,
	TriggerFinishSpeaking,
	TriggerSessionEnd,
}

func TestNext_TransitionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    State
		trigger Trigger
		want    State
	}{
		{StateIdle, TriggerWakeDetected, StateActiveSession},
		{StateIdle, TriggerSessionActive, StateIdle},
		{StateIdle, TriggerStartThinking, StateIdle},
		{StateIdle, TriggerStartSpeaking, StateIdle},
		{StateIdle, TriggerFinishSpeaking, StateIdle},
		{StateIdle, TriggerSessionEnd, StateIdle},

		{StateActiveSession, TriggerWakeDetected, StateActiveSession},
		{StateActiveSession, TriggerSessionActive, StateActiveSession},
		{StateActiveSession, TriggerStartThinking, StateThinking},
		{StateActiveSession, TriggerStartSpeaking, StateSpeaking},
		{StateActiveSession, TriggerFinishSpeaking, StateActiveSession},
		{StateActiveSession, TriggerSessionEnd, StateIdle},

		{StateThinking, TriggerWakeDetected, StateThinking},
		{StateThinking, TriggerSessionActive, StateThinking},
		{StateThinking, TriggerStartThinking, StateThinking},
		{StateThinking, TriggerStartSpeaking, StateSpeaking},
		{StateThinking, TriggerFinishSpeaking, StateThinking},
		{StateThinking, TriggerSessionEnd, StateIdle},

		{StateSpeaking, TriggerWakeDetected, StateSpeaking},
		{StateSpeaking, TriggerSessionActive, StateSpeaking},
		{StateSpeaking, TriggerStartThinking, StateSpeaking},
		{StateSpeaking, TriggerStartSpeaking, StateSpeaking},
		{StateSpeaking, TriggerFinishSpeaking, StateActiveSession},
		{StateSpeaking, TriggerSessionEnd, StateIdle},
	}

	for _, tc := range tests {
		if got := Next(tc.from, tc.trigger); got != tc.want {
			t.Fatalf("Next(%s, %s) = %s, want %s", tc.from, tc.trigger, got, tc.want)
		}
	}
}

func TestStatus_Vocabulary(t *testing.T) {
	t.Parallel()

	want := map[State]string{
		StateIdle:          "idle",
		StateActiveSession: "listening",
		StateThinking:      "thinking",
		StateSpeaking:      "speaking",
	}
	for s, status := range want {
		if got := s.Status(); got != status {
			t.Fatalf("%s.Status() = %q, want %q", s, got, status)
		}
	}
}

func TestMachine_StartsIdle(t *testing.T) {
	t.Parallel()
	m := NewMachine(quietLogger())
	if got := m.State(); got != StateIdle {
		t.Fatalf("initial state = %s, want IDLE", got)
	}
}

func TestMachine_NoOpTransitionDoesNotNotify(t *testing.T) {
	t.Parallel()

	m := NewMachine(quietLogger())
	calls := 0
	m.Subscribe(func(from, to State) { calls++ })

	if m.SessionEnd() {
		t.Fatal("session_end from IDLE should be a no-op")
	}
	if m.FinishSpeaking() {
		t.Fatal("finish_speaking from IDLE should be a no-op")
	}
	if calls != 0 {
		t.Fatalf("listener calls = %d, want 0", calls)
	}

	m.WakeDetected()
	if m.SessionActive() {
		t.Fatal("session_active re-entry should be a no-op")
	}
	if calls != 1 {
		t.Fatalf("listener calls = %d, want 1", calls)
	}
}

func TestMachine_PanickingListenerIsIsolated(t *testing.T) {
	t.Parallel()

	m := NewMachine(quietLogger())
	var seen []State
	m.Subscribe(func(from, to State) { panic("boom") })
	m.Subscribe(func(from, to State) { seen = append(seen, to) })

	if !m.WakeDetected() {
		t.Fatal("wake_detected from IDLE should change state")
	}
	if got := m.State(); got != StateActiveSession {
		t.Fatalf("state = %s, want ACTIVE_SESSION", got)
	}
	if len(seen) != 1 || seen[0] != StateActiveSession {
		t.Fatalf("second listener saw %v, want [ACTIVE_SESSION]", seen)
	}
}

func TestMachine_Unsubscribe(t *testing.T) {
	t.Parallel()

	m := NewMachine(quietLogger())
	calls := 0
	unsubscribe := m.Subscribe(func(from, to State) { calls++ })
	m.WakeDetected()
	unsubscribe()
	unsubscribe()
	m.SessionEnd()
	if calls != 1 {
		t.Fatalf("listener calls = %d, want 1", calls)
	}
}

func TestMachine_TriggerSequencesProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		triggers := rapid.SliceOf(rapid.SampledFrom(allTriggers)).Draw(rt, "triggers")
		listenerCount := rapid.IntRange(0, 4).Draw(rt, "listeners")

		m := NewMachine(quietLogger())
		counts := make([]int, listenerCount)
		for i := range counts {
			i := i
			m.Subscribe(func(from, to State) {
				if from == to {
					rt.Fatalf("listener %d notified of no-op %s -> %s", i, from, to)
				}
				counts[i]++
			})
		}

		model := StateIdle
		changes := 0
		for _, trig := range triggers {
			want := Next(model, trig)
			changed := m.Fire(trig)
			if changed != (want != model) {
				rt.Fatalf("Fire(%s) from %s changed=%v, want %v", trig, model, changed, want != model)
			}
			if got := m.State(); got != want {
				rt.Fatalf("after %s from %s state = %s, want %s", trig, model, got, want)
			}
			if changed {
				changes++
			}
			model = want

			valid := false
			for _, s := range allStates {
				if s == model {
					valid = true
				}
			}
			if !valid {
				rt.Fatalf("undefined state %d", int32(model))
			}
		}

		for i, c := range counts {
			if c != changes {
				rt.Fatalf("listener %d notified %d times, want %d", i, c, changes)
			}
		}
	})
}

func TestMachine_SessionEndAlwaysReachesIdle(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		triggers := rapid.SliceOf(rapid.SampledFrom(allTriggers)).Draw(rt, "triggers")
		m := NewMachine(quietLogger())
		for _, trig := range triggers {
			m.Fire(trig)
		}
		m.SessionEnd()
		if got := m.State(); got != StateIdle {
			rt.Fatalf("state after session_end = %s, want IDLE", got)
		}
	})
}
