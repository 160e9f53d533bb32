// Package audio handles 16-bit mono PCM: energy measurement, fixed-size
// framing, energy-based utterance segmentation, and the local capture and
// playback devices.
package audio

import (
	"math"
	"sync"
	"time"
)

// Format describes signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// CaptureFormat is the microphone format fed to wake and speech recognition.
var CaptureFormat = Format{SampleRate: 16000, Channels: 1}

// PlaybackFormat is the synthesized speech format.
var PlaybackFormat = Format{SampleRate: 24000, Channels: 1}

// BytesPerSecond returns the byte rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Duration returns the playback length of n bytes.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// BytesFor returns the byte count holding d of audio, rounded down to a
// whole sample frame.
func (f Format) BytesFor(d time.Duration) int {
	n := int(time.Duration(f.BytesPerSecond()) * d / time.Second)
	align := f.Channels * 2
	if align <= 0 {
		return n
	}
	return n - n%align
}

// CalculateRMSEnergy computes the root-mean-square energy of PCM audio,
// between 0.0 and 1.0.
func CalculateRMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(samples))
}

// CalculatePeakAmplitude returns the maximum absolute amplitude, between 0.0 and 1.0.
func CalculatePeakAmplitude(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		// float64 avoids overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}
	return maxAbs / 32768.0
}

// RingBuffer keeps the most recent bytes written to it.
type RingBuffer struct {
	mu       sync.Mutex
	data     []byte
	writePos int
	filled   int
}

// NewRingBuffer returns a ring holding size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size < 0 {
		size = 0
	}
	return &RingBuffer{data: make([]byte, size)}
}

// Write appends p, overwriting the oldest bytes when full.
func (r *RingBuffer) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.data)
	if size == 0 {
		return
	}
	if len(p) >= size {
		copy(r.data, p[len(p)-size:])
		r.writePos = 0
		r.filled = size
		return
	}
	for len(p) > 0 {
		n := copy(r.data[r.writePos:], p)
		p = p[n:]
		r.writePos = (r.writePos + n) % size
		r.filled += n
	}
	if r.filled > size {
		r.filled = size
	}
}

// Read returns the buffered bytes in chronological order.
func (r *RingBuffer) Read() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.data)
	if r.filled < size {
		out := make([]byte, r.filled)
		copy(out, r.data[:r.filled])
		return out
	}
	out := make([]byte, size)
	first := size - r.writePos
	copy(out[:first], r.data[r.writePos:])
	copy(out[first:], r.data[:r.writePos])
	return out
}

func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writePos = 0
	r.filled = 0
}

func (r *RingBuffer) Filled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filled
}
