package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultCORSOrigin = "http://localhost:3000"

type Config struct {
	Addr string

	// CORS
	CORSAllowedOrigins map[string]struct{}

	// Provider credentials and models.
	GeminiAPIKey      string
	GeminiModel       string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModel   string
	CartesiaAPIKey    string
	STTModel          string
	Language          string

	// Persona files, loaded as JSON.
	PersonalityFile string
	BackgroundFile  string

	WakePhrases []string
	StopPhrases []string

	// Conversation timing.
	SilenceTimeout  time.Duration
	PollInterval    time.Duration
	GenerateTimeout time.Duration
	SpeakTimeout    time.Duration

	// Audio
	CaptureSampleRate  int
	FrameSamples       int
	CaptureQueueFrames int
	PlaybackSampleRate int
	VADThreshold       float64
	VADSilence         time.Duration

	// Optional persistence. Empty disables.
	DatabaseURL      string
	RedisURL         string
	HistoryQueueSize int

	StatePingInterval time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VAI_FRIEND_ADDR", ":8000"),
		CORSAllowedOrigins:  make(map[string]struct{}),
		GeminiAPIKey:        envOr("GEMINI_API_KEY", ""),
		GeminiModel:         envOr("GEMINI_MODEL", "gemini-2.5-pro"),
		ElevenLabsAPIKey:    envOr("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:   envOr("ELEVENLABS_VOICE_ID", ""),
		ElevenLabsModel:     envOr("ELEVENLABS_MODEL", "eleven_flash_v2_5"),
		CartesiaAPIKey:      envOr("CARTESIA_API_KEY", ""),
		STTModel:            envOr("VAI_FRIEND_STT_MODEL", "ink-whisper"),
		Language:            envOr("VAI_FRIEND_LANGUAGE", "en"),
		PersonalityFile:     envOr("VAI_FRIEND_PERSONALITY_FILE", "personality.json"),
		BackgroundFile:      envOr("VAI_FRIEND_BACKGROUND_FILE", "history.json"),
		WakePhrases:         splitCSV(envOr("VAI_FRIEND_WAKE_PHRASES", "hello love")),
		StopPhrases:         splitCSV(os.Getenv("VAI_FRIEND_STOP_PHRASES")),
		SilenceTimeout:      envDurationOr("VAI_FRIEND_SILENCE_TIMEOUT", 30*time.Second),
		PollInterval:        envDurationOr("VAI_FRIEND_POLL_INTERVAL", 100*time.Millisecond),
		GenerateTimeout:     envDurationOr("VAI_FRIEND_GENERATE_TIMEOUT", 60*time.Second),
		SpeakTimeout:        envDurationOr("VAI_FRIEND_SPEAK_TIMEOUT", 2*time.Minute),
		CaptureSampleRate:   envIntOr("VAI_FRIEND_CAPTURE_SAMPLE_RATE", 16000),
		FrameSamples:        envIntOr("VAI_FRIEND_FRAME_SAMPLES", 512),
		CaptureQueueFrames:  envIntOr("VAI_FRIEND_CAPTURE_QUEUE_FRAMES", 64),
		PlaybackSampleRate:  envIntOr("VAI_FRIEND_PLAYBACK_SAMPLE_RATE", 24000),
		VADThreshold:        envFloat64Or("VAI_FRIEND_VAD_THRESHOLD", 0.02),
		VADSilence:          envDurationOr("VAI_FRIEND_VAD_SILENCE", 800*time.Millisecond),
		DatabaseURL:         envOr("DATABASE_URL", ""),
		RedisURL:            envOr("REDIS_URL", ""),
		HistoryQueueSize:    envIntOr("VAI_FRIEND_HISTORY_QUEUE_SIZE", 256),
		StatePingInterval:   envDurationOr("VAI_FRIEND_STATE_PING_INTERVAL", 30*time.Second),
		ReadHeaderTimeout:   envDurationOr("VAI_FRIEND_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("VAI_FRIEND_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("VAI_FRIEND_SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	origins := splitCSV(os.Getenv("VAI_FRIEND_CORS_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{DefaultCORSOrigin}
	}
	for _, origin := range origins {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	var missing []string
	for _, kv := range []struct{ key, val string }{
		{"GEMINI_API_KEY", cfg.GeminiAPIKey},
		{"ELEVENLABS_API_KEY", cfg.ElevenLabsAPIKey},
		{"ELEVENLABS_VOICE_ID", cfg.ElevenLabsVoiceID},
		{"CARTESIA_API_KEY", cfg.CartesiaAPIKey},
	} {
		if kv.val == "" {
			missing = append(missing, kv.key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if len(cfg.WakePhrases) == 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_WAKE_PHRASES must not be empty")
	}
	if cfg.SilenceTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_SILENCE_TIMEOUT must be > 0")
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_POLL_INTERVAL must be > 0")
	}
	if cfg.PollInterval >= cfg.SilenceTimeout {
		return Config{}, fmt.Errorf("VAI_FRIEND_POLL_INTERVAL must be < VAI_FRIEND_SILENCE_TIMEOUT")
	}
	if cfg.GenerateTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_GENERATE_TIMEOUT must be > 0")
	}
	if cfg.SpeakTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_SPEAK_TIMEOUT must be > 0")
	}
	if cfg.CaptureSampleRate <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_CAPTURE_SAMPLE_RATE must be > 0")
	}
	if cfg.FrameSamples <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_FRAME_SAMPLES must be > 0")
	}
	if cfg.CaptureQueueFrames <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_CAPTURE_QUEUE_FRAMES must be > 0")
	}
	if cfg.PlaybackSampleRate <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_PLAYBACK_SAMPLE_RATE must be > 0")
	}
	if cfg.VADThreshold <= 0 || cfg.VADThreshold >= 1 {
		return Config{}, fmt.Errorf("VAI_FRIEND_VAD_THRESHOLD must be in (0, 1)")
	}
	if cfg.VADSilence <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_VAD_SILENCE must be > 0")
	}
	if cfg.HistoryQueueSize <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_HISTORY_QUEUE_SIZE must be > 0")
	}
	if cfg.StatePingInterval <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_STATE_PING_INTERVAL must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VAI_FRIEND_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
