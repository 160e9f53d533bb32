package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vango-go/vai-friend/pkg/core/audio"
	"github.com/vango-go/vai-friend/pkg/core/conversation"
	"github.com/vango-go/vai-friend/pkg/core/generator"
	"github.com/vango-go/vai-friend/pkg/core/orchestrator"
	"github.com/vango-go/vai-friend/pkg/core/voice/stt"
	"github.com/vango-go/vai-friend/pkg/core/voice/tts"
	"github.com/vango-go/vai-friend/pkg/gateway/config"
	"github.com/vango-go/vai-friend/pkg/gateway/handlers"
	"github.com/vango-go/vai-friend/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-friend/pkg/gateway/metrics"
	gatewayserver "github.com/vango-go/vai-friend/pkg/gateway/server"
	"github.com/vango-go/vai-friend/pkg/store"
)

// conversationRunner is the orchestrator as seen by serve.
type conversationRunner interface {
	handlers.Conversation
	Run(ctx context.Context) error
}

// runtime is everything serve starts and later tears down.
type runtime struct {
	conversation conversationRunner
	handler      http.Handler
	lifecycle    *lifecycle.Lifecycle
	closers      []func(context.Context) error
}

func (rt *runtime) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

// close runs closers in reverse registration order.
func (rt *runtime) close(ctx context.Context, logger *slog.Logger) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
	rt.closers = nil
}

type serveDeps struct {
	loadConfig   func() (config.Config, error)
	buildRuntime func(context.Context, config.Config, *slog.Logger) (*runtime, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServeDeps() serveDeps {
	return serveDeps{
		loadConfig:   config.LoadFromEnv,
		buildRuntime: buildRuntime,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

// buildRuntime opens the audio devices and provider clients and wires them
// into the orchestrator and HTTP gateway.
func buildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{lifecycle: &lifecycle.Lifecycle{}}
	fail := func(err error) (*runtime, error) {
		rt.close(context.Background(), logger)
		return nil, err
	}

	m := metrics.New("vai_friend")
	machine := conversation.NewMachine(logger)
	machine.Subscribe(m.Observe)

	captureFormat := audio.Format{SampleRate: cfg.CaptureSampleRate, Channels: 1}
	source, err := audio.NewSource(audio.SourceConfig{
		Format:       captureFormat,
		FrameSamples: cfg.FrameSamples,
		QueueFrames:  cfg.CaptureQueueFrames,
		Logger:       logger,
	})
	if err != nil {
		return fail(fmt.Errorf("open capture device: %w", err))
	}
	// The orchestrator closes the devices when Run returns; closing twice is safe.
	rt.onClose(func(context.Context) error { return source.Close() })
	m.TrackCaptureOverruns(source.Dropped)

	sink, err := audio.NewSink(audio.SinkConfig{
		Format: audio.Format{SampleRate: cfg.PlaybackSampleRate, Channels: 1},
		Logger: logger,
	})
	if err != nil {
		return fail(fmt.Errorf("open playback device: %w", err))
	}
	rt.onClose(func(context.Context) error { return sink.Close() })

	cartesia := stt.NewCartesia(cfg.CartesiaAPIKey)
	segmenter := audio.DefaultSegmenterConfig(captureFormat)
	segmenter.Threshold = cfg.VADThreshold
	segmenter.TrailingSilence = cfg.VADSilence
	recognizer := stt.NewRecognizer(cartesia, stt.RecognizerConfig{
		Segmenter: segmenter,
		Model:     cfg.STTModel,
		Language:  cfg.Language,
		Logger:    logger,
	})
	wake := stt.NewWakeDetector(cartesia, stt.WakeConfig{
		Phrases:    cfg.WakePhrases,
		Model:      cfg.STTModel,
		Language:   cfg.Language,
		SampleRate: cfg.CaptureSampleRate,
		Logger:     logger,
	})
	rt.onClose(func(context.Context) error { return wake.Close() })

	elevenLabs := tts.NewElevenLabs(cfg.ElevenLabsAPIKey)
	synthesizer := tts.NewSynthesizer(elevenLabs, tts.SynthesizeOptions{
		Voice:      cfg.ElevenLabsVoiceID,
		Model:      cfg.ElevenLabsModel,
		SampleRate: cfg.PlaybackSampleRate,
	}, logger)

	gen, err := generator.New(ctx, generator.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Profile: generator.LoadProfiles(cfg.PersonalityFile, cfg.BackgroundFile, logger),
		Logger:  logger,
	})
	if err != nil {
		return fail(fmt.Errorf("create generator: %w", err))
	}

	deps := orchestrator.Deps{
		Source:      source,
		Sink:        sink,
		Wake:        wake,
		Recognizer:  recognizer,
		Generator:   gen,
		Synthesizer: synthesizer,
		Observer:    m,
		Machine:     machine,
		Logger:      logger,
	}
	gwDeps := gatewayserver.Deps{
		Metrics:   m,
		Lifecycle: rt.lifecycle,
	}

	if cfg.DatabaseURL != "" {
		pg, err := store.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fail(fmt.Errorf("open history store: %w", err))
		}
		rt.onClose(func(context.Context) error {
			pg.Close()
			return nil
		})
		if err := pg.Migrate(ctx); err != nil {
			return fail(fmt.Errorf("migrate history store: %w", err))
		}
		recorder := store.NewRecorder(pg, store.RecorderConfig{
			QueueSize: cfg.HistoryQueueSize,
			Logger:    logger,
		})
		rt.onClose(recorder.Close)
		m.TrackHistoryWrites(recorder.Dropped, recorder.Failed)
		deps.Recorder = recorder
		gwDeps.History = pg
		gwDeps.Store = pg
	}

	if cfg.RedisURL != "" {
		client, err := store.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		rt.onClose(func(context.Context) error { return client.Close() })
		mirror := store.NewStateMirror(client, store.MirrorConfig{Logger: logger})
		rt.onClose(func(context.Context) error { return mirror.Close() })
		machine.Subscribe(mirror.Observe)
		mirror.Observe(machine.State(), machine.State())
	}

	orch, err := orchestrator.New(orchestrator.Config{
		SilenceTimeout:  cfg.SilenceTimeout,
		PollInterval:    cfg.PollInterval,
		GenerateTimeout: cfg.GenerateTimeout,
		SpeakTimeout:    cfg.SpeakTimeout,
		StopPhrases:     cfg.StopPhrases,
	}, deps)
	if err != nil {
		return fail(err)
	}

	logger.Info("voice pipeline ready",
		"stt", cartesia.Name(),
		"tts", elevenLabs.Name(),
		"llm_model", gen.Model(),
		"wake_phrases", wake.Phrases(),
		"history", cfg.DatabaseURL != "",
		"state_mirror", cfg.RedisURL != "",
	)

	gwDeps.Conversation = orch
	rt.conversation = orch
	rt.handler = gatewayserver.New(cfg, logger, gwDeps).Handler()
	return rt, nil
}

func runServe(ctx context.Context, logger *slog.Logger, deps serveDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.buildRuntime == nil {
		return errors.New("missing buildRuntime dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := deps.buildRuntime(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- rt.conversation.Run(runCtx)
	}()

	httpSrv := buildHTTPServer(cfg, rt.handler)
	logger.Info("starting vai-friend",
		"addr", cfg.Addr,
		"history", cfg.DatabaseURL != "",
		"state_mirror", cfg.RedisURL != "",
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	var serveErr error
	select {
	case err := <-listenErrCh:
		listenErrCh = nil
		if err != nil {
			serveErr = fmt.Errorf("serve: %w", err)
		}
	case err := <-runErrCh:
		runErrCh = nil
		if err != nil {
			serveErr = fmt.Errorf("orchestrator: %w", err)
		}
	case <-ctx.Done():
		logger.Info("context done, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	rt.lifecycle.SetDraining(true)
	cancelRun()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("shutdown http server: %w", err)
	}
	if listenErrCh != nil {
		if err := <-listenErrCh; err != nil && serveErr == nil {
			serveErr = fmt.Errorf("serve: %w", err)
		}
	}
	if runErrCh != nil {
		select {
		case err := <-runErrCh:
			if err != nil && serveErr == nil {
				serveErr = fmt.Errorf("orchestrator: %w", err)
			}
		case <-shutdownCtx.Done():
			logger.Warn("orchestrator did not stop within the grace period")
		}
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer closeCancel()
	rt.close(closeCtx, logger)

	logger.Info("vai-friend stopped")
	return serveErr
}
