package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

// tone returns n samples of constant amplitude.
func tone(n int, amplitude int16) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func TestCalculateRMSEnergy(t *testing.T) {
	t.Parallel()

	if got := CalculateRMSEnergy(nil); got != 0 {
		t.Fatalf("empty energy = %v, want 0", got)
	}
	if got := CalculateRMSEnergy(tone(100, 0)); got != 0 {
		t.Fatalf("silence energy = %v, want 0", got)
	}
	got := CalculateRMSEnergy(tone(100, 16384))
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("half-scale energy = %v, want 0.5", got)
	}
}

func TestCalculatePeakAmplitude(t *testing.T) {
	t.Parallel()

	pcm := append(tone(10, 1000), tone(1, -32768)...)
	if got := CalculatePeakAmplitude(pcm); got != 1.0 {
		t.Fatalf("peak = %v, want 1.0", got)
	}
	if got := CalculatePeakAmplitude([]byte{1}); got != 0 {
		t.Fatalf("short peak = %v, want 0", got)
	}
}

func TestFormat_DurationAndBytes(t *testing.T) {
	t.Parallel()

	if got := CaptureFormat.BytesPerSecond(); got != 32000 {
		t.Fatalf("capture bytes/s = %d, want 32000", got)
	}
	if got := CaptureFormat.Duration(1024); got != 32*time.Millisecond {
		t.Fatalf("1024 bytes = %v, want 32ms", got)
	}
	if got := PlaybackFormat.BytesFor(100 * time.Millisecond); got != 4800 {
		t.Fatalf("100ms playback = %d bytes, want 4800", got)
	}
	if got := CaptureFormat.BytesFor(time.Microsecond * 31); got%2 != 0 {
		t.Fatalf("BytesFor returned unaligned %d", got)
	}
}

func TestRingBuffer_KeepsNewestInOrder(t *testing.T) {
	t.Parallel()

	r := NewRingBuffer(4)
	r.Write([]byte{1, 2, 3})
	if got := r.Read(); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("partial read = %v", got)
	}
	r.Write([]byte{4, 5, 6})
	if got := r.Read(); !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Fatalf("wrapped read = %v, want [3 4 5 6]", got)
	}
	r.Write([]byte{7, 8, 9, 10, 11})
	if got := r.Read(); !bytes.Equal(got, []byte{8, 9, 10, 11}) {
		t.Fatalf("oversized write read = %v, want [8 9 10 11]", got)
	}
	r.Clear()
	if r.Filled() != 0 || len(r.Read()) != 0 {
		t.Fatal("clear should empty the ring")
	}
}

func TestFramer_EmitsFixedFrames(t *testing.T) {
	t.Parallel()

	f := NewFramer(4)
	var frames [][]byte
	emit := func(frame []byte) { frames = append(frames, frame) }

	f.Write([]byte{1, 2, 3}, emit)
	if len(frames) != 0 || f.Pending() != 3 {
		t.Fatalf("frames=%d pending=%d, want 0/3", len(frames), f.Pending())
	}
	f.Write([]byte{4, 5, 6, 7, 8, 9}, emit)
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{1, 2, 3, 4}) || !bytes.Equal(frames[1], []byte{5, 6, 7, 8}) {
		t.Fatalf("frames = %v", frames)
	}
	if f.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", f.Pending())
	}

	frames[0][0] = 99
	f.Write([]byte{10, 11, 12}, emit)
	if !bytes.Equal(frames[2], []byte{9, 10, 11, 12}) {
		t.Fatalf("third frame = %v, want [9 10 11 12]", frames[2])
	}

	f.Reset()
	if f.Pending() != 0 {
		t.Fatal("reset should drop partial frame")
	}
}

func TestFrameQueue_DropsWhenFull(t *testing.T) {
	t.Parallel()

	q := newFrameQueue(2)
	if !q.push([]byte{1}) || !q.push([]byte{2}) {
		t.Fatal("first pushes should succeed")
	}
	if q.push([]byte{3}) {
		t.Fatal("push into full queue should drop")
	}
	if q.dropped.Load() != 1 {
		t.Fatalf("dropped = %d, want 1", q.dropped.Load())
	}

	f, ok := q.pop(0)
	if !ok || f[0] != 1 {
		t.Fatalf("pop = %v,%v want [1],true", f, ok)
	}
	if n := q.drain(); n != 1 {
		t.Fatalf("drain = %d, want 1", n)
	}

	start := time.Now()
	if _, ok := q.pop(15 * time.Millisecond); ok {
		t.Fatal("pop on empty queue should time out")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("pop returned before its wait elapsed")
	}
}
