// Package metrics exposes conversation and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

// Metrics holds all Prometheus metrics for the assistant.
type Metrics struct {
	registry  *prometheus.Registry
	namespace string

	// Conversation metrics
	State           *prometheus.GaugeVec
	Transitions     *prometheus.CounterVec
	SessionsTotal   *prometheus.CounterVec
	SessionsEnded   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	TurnsTotal      prometheus.Counter
	TurnDuration    prometheus.Histogram
	FallbacksTotal  *prometheus.CounterVec
	DroppedFrames   prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var allStates = []conversation.State{
	conversation.StateIdle,
	conversation.StateActiveSession,
	conversation.StateThinking,
	conversation.StateSpeaking,
}

// New creates a Metrics instance with every collector registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vai_friend"
	}

	registry := prometheus.NewRegistry()

	state := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current conversation state (1 for the active state)",
		},
		[]string{"state"},
	)

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of state transitions",
		},
		[]string{"from", "to"},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions started",
		},
		[]string{"trigger"},
	)

	sessionsEnded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of sessions ended",
		},
		[]string{"reason"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Session duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	turnsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of completed conversation turns",
		},
	)

	turnDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from final transcript to end of spoken reply",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	fallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of collaborator failures replaced by a fallback",
		},
		[]string{"op"},
	)

	droppedFrames := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Total number of captured audio frames discarded",
		},
	)

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "code"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	registry.MustRegister(
		state,
		transitions,
		sessionsTotal,
		sessionsEnded,
		sessionDuration,
		turnsTotal,
		turnDuration,
		fallbacksTotal,
		droppedFrames,
		requestsTotal,
		requestDuration,
	)

	m := &Metrics{
		registry:        registry,
		namespace:       namespace,
		State:           state,
		Transitions:     transitions,
		SessionsTotal:   sessionsTotal,
		SessionsEnded:   sessionsEnded,
		SessionDuration: sessionDuration,
		TurnsTotal:      turnsTotal,
		TurnDuration:    turnDuration,
		FallbacksTotal:  fallbacksTotal,
		DroppedFrames:   droppedFrames,
		RequestsTotal:   requestsTotal,
		RequestDuration: requestDuration,
	}
	m.setState(conversation.StateIdle)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackCaptureOverruns exports the number of frames the capture device
// discarded because its queue was full.
func (m *Metrics) TrackCaptureOverruns(fn func() int64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "capture_overruns_total",
			Help:      "Total number of captured frames discarded by a full capture queue",
		},
		func() float64 { return float64(fn()) },
	))
}

// TrackHistoryWrites exports the history recorder's dropped and failed
// write counts.
func (m *Metrics) TrackHistoryWrites(dropped, failed func() int64) {
	for _, c := range []struct {
		name, help string
		fn         func() int64
	}{
		{"history_writes_dropped_total", "Total number of history writes dropped by a full recorder queue", dropped},
		{"history_writes_failed_total", "Total number of history writes the store rejected", failed},
	} {
		fn := c.fn
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Namespace: m.namespace, Name: c.name, Help: c.help},
			func() float64 { return float64(fn()) },
		))
	}
}

// Observe is a conversation.Listener.
func (m *Metrics) Observe(from, to conversation.State) {
	m.Transitions.WithLabelValues(from.String(), to.String()).Inc()
	m.setState(to)
}

func (m *Metrics) setState(current conversation.State) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		m.State.WithLabelValues(s.Status()).Set(v)
	}
}

func (m *Metrics) SessionStarted(trigger string) {
	m.SessionsTotal.WithLabelValues(trigger).Inc()
}

func (m *Metrics) SessionEnded(reason string, duration time.Duration) {
	m.SessionsEnded.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

func (m *Metrics) TurnCompleted(duration time.Duration) {
	m.TurnsTotal.Inc()
	m.TurnDuration.Observe(duration.Seconds())
}

func (m *Metrics) Fallback(op string) {
	m.FallbacksTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) FramesDropped(n int) {
	if n > 0 {
		m.DroppedFrames.Add(float64(n))
	}
}

// Instrument records request counts and latency for next under route.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(
		m.RequestDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(m.RequestsTotal.MustCurryWith(labels), next),
	)
}
