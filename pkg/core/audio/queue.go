package audio

import (
	"sync/atomic"
	"time"
)

// frameQueue is a bounded hand-off from a device callback to the loop.
// push never blocks; frames arriving while full are dropped and counted.
type frameQueue struct {
	ch      chan []byte
	dropped atomic.Int64
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &frameQueue{ch: make(chan []byte, capacity)}
}

func (q *frameQueue) push(frame []byte) bool {
	select {
	case q.ch <- frame:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

func (q *frameQueue) pop(wait time.Duration) ([]byte, bool) {
	select {
	case f := <-q.ch:
		return f, true
	default:
	}
	if wait <= 0 {
		return nil, false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case f := <-q.ch:
		return f, true
	case <-timer.C:
		return nil, false
	}
}

// drain discards queued frames and returns how many were removed.
func (q *frameQueue) drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

func (q *frameQueue) len() int {
	return len(q.ch)
}
