package audio

import "time"

// SegmenterConfig tunes energy-based utterance detection.
type SegmenterConfig struct {
	Format Format

	// Threshold is the RMS energy above which a frame counts as voiced. Default: 0.02.
	Threshold float64

	// TrailingSilence ends an utterance. Default: 800ms.
	TrailingSilence time.Duration

	// PreRoll is audio kept from before speech onset. Default: 300ms.
	PreRoll time.Duration

	// MinSpeech is the voiced audio an utterance needs to be emitted. Default: 250ms.
	MinSpeech time.Duration

	// MaxUtterance forces an utterance to end. Default: 20s.
	MaxUtterance time.Duration
}

// DefaultSegmenterConfig returns the standard segmentation settings for f.
func DefaultSegmenterConfig(f Format) SegmenterConfig {
	return SegmenterConfig{
		Format:          f,
		Threshold:       0.02,
		TrailingSilence: 800 * time.Millisecond,
		PreRoll:         300 * time.Millisecond,
		MinSpeech:       250 * time.Millisecond,
		MaxUtterance:    20 * time.Second,
	}
}

func (c SegmenterConfig) withDefaults() SegmenterConfig {
	def := DefaultSegmenterConfig(c.Format)
	if c.Format.SampleRate <= 0 || c.Format.Channels <= 0 {
		c.Format = CaptureFormat
	}
	if c.Threshold <= 0 {
		c.Threshold = def.Threshold
	}
	if c.TrailingSilence <= 0 {
		c.TrailingSilence = def.TrailingSilence
	}
	if c.PreRoll < 0 {
		c.PreRoll = 0
	}
	if c.MinSpeech < 0 {
		c.MinSpeech = 0
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = def.MaxUtterance
	}
	return c
}

// Segmenter groups frames into utterances. It is not safe for concurrent use.
type Segmenter struct {
	cfg      SegmenterConfig
	preroll  *RingBuffer
	buf      []byte
	inSpeech bool
	voiced   time.Duration
	silence  time.Duration
}

// NewSegmenter returns a segmenter waiting for speech onset.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	cfg = cfg.withDefaults()
	return &Segmenter{
		cfg:     cfg,
		preroll: NewRingBuffer(cfg.Format.BytesFor(cfg.PreRoll)),
	}
}

// Push feeds one frame. When an utterance completes it is returned with
// done set; utterances with too little voiced audio are discarded.
func (s *Segmenter) Push(frame []byte) (utterance []byte, done bool) {
	d := s.cfg.Format.Duration(len(frame))
	voiced := CalculateRMSEnergy(frame) >= s.cfg.Threshold

	if !s.inSpeech {
		if !voiced {
			s.preroll.Write(frame)
			return nil, false
		}
		s.inSpeech = true
		s.buf = append(s.preroll.Read(), frame...)
		s.preroll.Clear()
		s.voiced = d
		s.silence = 0
		return nil, false
	}

	s.buf = append(s.buf, frame...)
	if voiced {
		s.voiced += d
		s.silence = 0
	} else {
		s.silence += d
	}

	if s.silence < s.cfg.TrailingSilence && s.cfg.Format.Duration(len(s.buf)) < s.cfg.MaxUtterance {
		return nil, false
	}

	out, enough := s.buf, s.voiced >= s.cfg.MinSpeech
	s.Reset()
	if !enough {
		return nil, false
	}
	return out, true
}

// InSpeech reports whether an utterance is being buffered.
func (s *Segmenter) InSpeech() bool {
	return s.inSpeech
}

// Reset discards any partial utterance.
func (s *Segmenter) Reset() {
	s.inSpeech = false
	s.buf = nil
	s.voiced = 0
	s.silence = 0
	s.preroll.Clear()
}
