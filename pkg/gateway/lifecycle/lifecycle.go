// Package lifecycle tracks process shutdown for handlers.
package lifecycle

import "sync"

// Lifecycle is shared across handlers. Readiness reports unavailable while
// draining, and long-lived streams close when draining begins. The zero
// value is ready; a nil *Lifecycle never drains.
type Lifecycle struct {
	mu       sync.Mutex
	draining bool
	// drained is closed while draining and replaced when draining ends.
	drained chan struct{}
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if draining == l.draining {
		return
	}
	l.draining = draining
	if draining {
		close(l.signalLocked())
	} else {
		l.drained = nil
	}
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.draining
}

// Draining returns a channel that is closed once draining begins.
func (l *Lifecycle) Draining() <-chan struct{} {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.signalLocked()
}

func (l *Lifecycle) signalLocked() chan struct{} {
	if l.drained == nil {
		l.drained = make(chan struct{})
	}
	return l.drained
}
