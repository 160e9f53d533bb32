package audio

// DefaultFrameSamples is the capture frame length handed to the loop.
const DefaultFrameSamples = 512

// Framer cuts an arbitrary byte stream into fixed-size frames.
// It is not safe for concurrent use.
type Framer struct {
	size    int
	pending []byte
}

// NewFramer returns a framer emitting frames of frameBytes bytes.
func NewFramer(frameBytes int) *Framer {
	if frameBytes <= 0 {
		frameBytes = DefaultFrameSamples * 2
	}
	return &Framer{size: frameBytes, pending: make([]byte, 0, frameBytes*2)}
}

// FrameBytes returns the emitted frame size.
func (f *Framer) FrameBytes() int {
	return f.size
}

// Write buffers p and calls emit with each completed frame. Every frame
// passed to emit is a fresh slice.
func (f *Framer) Write(p []byte, emit func(frame []byte)) {
	f.pending = append(f.pending, p...)
	off := 0
	for len(f.pending)-off >= f.size {
		frame := make([]byte, f.size)
		copy(frame, f.pending[off:off+f.size])
		emit(frame)
		off += f.size
	}
	if off > 0 {
		n := copy(f.pending, f.pending[off:])
		f.pending = f.pending[:n]
	}
}

// Pending returns the number of buffered bytes not yet emitted.
func (f *Framer) Pending() int {
	return len(f.pending)
}

// Reset discards any partial frame.
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
}
