package server

import (
	"log/slog"
	"net/http"

	"github.com/vango-go/vai-friend/pkg/gateway/config"
	"github.com/vango-go/vai-friend/pkg/gateway/handlers"
	"github.com/vango-go/vai-friend/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-friend/pkg/gateway/metrics"
	"github.com/vango-go/vai-friend/pkg/gateway/mw"
)

// Deps are the runtime collaborators exposed over HTTP. Conversation is
// required; History, Store and Metrics are optional.
type Deps struct {
	Conversation handlers.Conversation
	History      handlers.History
	Store        handlers.Pinger
	Metrics      *metrics.Metrics
	Lifecycle    *lifecycle.Lifecycle
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Lifecycle: s.deps.Lifecycle,
		Store:     s.deps.Store,
	})
	if s.deps.Metrics != nil {
		s.mux.Handle("/metrics", s.deps.Metrics.Handler())
	}

	s.handle("/status", handlers.StatusHandler{Conversation: s.deps.Conversation})
	s.handle("/start-session", handlers.StartSessionHandler{Conversation: s.deps.Conversation})
	s.handle("/sessions", handlers.SessionsHandler{History: s.deps.History})
	s.handle("/sessions/{id}", handlers.SessionDetailHandler{History: s.deps.History})
	s.handle("/ws/state", handlers.StateSocketHandler{
		Config:       s.cfg,
		Conversation: s.deps.Conversation,
		Lifecycle:    s.deps.Lifecycle,
		PingInterval: s.cfg.StatePingInterval,
		Logger:       s.logger,
	})
	s.handle("/events", handlers.EventsHandler{
		Conversation: s.deps.Conversation,
		Lifecycle:    s.deps.Lifecycle,
		PingInterval: s.cfg.StatePingInterval,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) handle(route string, h http.Handler) {
	if s.deps.Metrics != nil {
		h = s.deps.Metrics.Instrument(route, h)
	}
	s.mux.Handle(route, h)
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
