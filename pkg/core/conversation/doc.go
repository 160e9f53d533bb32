// Package conversation holds the domain model of a voice companion session:
// the process-wide conversation state, the transition rules that move it, the
// rolling memory of recent turns, and the session record itself.
//
// # State Machine
//
//	IDLE ──wake_detected──▶ ACTIVE_SESSION ──start_thinking──▶ THINKING
//	  ▲                        │    ▲                              │
//	  │                 start_speaking  finish_speaking      start_speaking
//	  │                        ▼    │                              │
//	  └────session_end──── SPEAKING ◀──────────────────────────────┘
//
// session_end resets to IDLE from any state. Every other trigger that is not
// listed for the current state is a silent no-op.
package conversation
