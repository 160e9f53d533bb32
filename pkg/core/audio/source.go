package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// SourceConfig configures microphone capture.
type SourceConfig struct {
	Format       Format
	FrameSamples int
	// QueueFrames bounds frames waiting for the loop. Default: 64 (~2s at 16kHz/512).
	QueueFrames int
	Logger      *slog.Logger
}

// Source captures fixed-size PCM frames from the default input device.
type Source struct {
	cfg    SourceConfig
	logger *slog.Logger

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	framer *Framer
	queue  *frameQueue

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewSource opens the capture device. Device errors are returned here so
// they surface at startup.
func NewSource(cfg SourceConfig) (*Source, error) {
	if cfg.Format.SampleRate <= 0 || cfg.Format.Channels <= 0 {
		cfg.Format = CaptureFormat
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = DefaultFrameSamples
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Source{
		cfg:    cfg,
		logger: cfg.Logger,
		framer: NewFramer(cfg.FrameSamples * cfg.Format.Channels * 2),
		queue:  newFrameQueue(cfg.QueueFrames),
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Format.Channels)
	deviceConfig.SampleRate = uint32(cfg.Format.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init capture device: %w", err)
	}

	s.ctx = mctx
	s.device = device
	return s, nil
}

// onData runs on the device thread; it only frames and enqueues.
func (s *Source) onData(_, input []byte, _ uint32) {
	s.framer.Write(input, func(frame []byte) {
		s.queue.push(frame)
	})
}

func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("audio source closed")
	}
	if s.started {
		return nil
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("start capture device: %w", err)
	}
	s.started = true
	s.logger.Info("audio capture started",
		"sample_rate", s.cfg.Format.SampleRate,
		"frame_samples", s.cfg.FrameSamples,
	)
	return nil
}

// NextFrame waits up to wait for a captured frame.
func (s *Source) NextFrame(wait time.Duration) ([]byte, bool) {
	return s.queue.pop(wait)
}

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.closed {
		return nil
	}
	s.started = false
	err := s.device.Stop()
	s.queue.drain()
	if err != nil {
		return fmt.Errorf("stop capture device: %w", err)
	}
	return nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.started {
		_ = s.device.Stop()
		s.started = false
	}
	s.device.Uninit()
	err := s.ctx.Uninit()
	s.ctx.Free()
	return err
}

// Dropped returns frames discarded because the loop fell behind.
func (s *Source) Dropped() int64 {
	return s.queue.dropped.Load()
}
