// Package server exposes the Mise HTTP and WebSocket surface: dictation
// sessions, the suggestion review queue, record CRUD, health probes, and the
// Prometheus metrics endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mise-kitchen/mise/internal/enrich"
	"github.com/mise-kitchen/mise/internal/health"
	"github.com/mise-kitchen/mise/internal/observe"
	"github.com/mise-kitchen/mise/internal/pool"
	"github.com/mise-kitchen/mise/internal/store"
)

// Config holds the server settings.
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g., ":8080").
	ListenAddr string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// SessionTTL is how long an unattached dictation session survives before
	// the sweeper closes it. Default: 10m.
	SessionTTL time.Duration

	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration
}

// Server wires the HTTP surface over the domain subsystems.
type Server struct {
	cfg      Config
	store    store.Store
	pool     *pool.Pool
	enricher *enrich.Enricher
	semantic *store.SemanticIndex
	imageGen enrich.ImageGenerator
	health   *health.Handler
	metrics  *observe.Metrics
	sessions *sessionManager

	httpSrv  *http.Server
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*Server)

// WithSemanticIndex enables duplicate warnings on new suggestions and keeps
// the embedding index updated as ingredients are applied.
func WithSemanticIndex(idx *store.SemanticIndex) Option {
	return func(s *Server) { s.semantic = idx }
}

// WithImageGenerator enables the menu item image endpoint.
func WithImageGenerator(g enrich.ImageGenerator) Option {
	return func(s *Server) { s.imageGen = g }
}

// WithHealthCheckers sets the readiness checkers served under /readyz.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.health = health.New(checkers...) }
}

// WithMetrics overrides the metrics sink. Used in tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a [Server] over the given store, connection pool, and enricher.
func New(cfg Config, st store.Store, p *pool.Pool, enricher *enrich.Enricher, opts ...Option) *Server {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		pool:     p,
		enricher: enricher,
		health:   health.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.sessions = newSessionManager(p, cfg.SessionTTL)
	return s
}

// Handler builds the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Dictation
	mux.HandleFunc("POST /v1/dictation/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/dictation/sessions/{id}/ws", s.handleSessionWS)
	mux.HandleFunc("DELETE /v1/dictation/sessions/{id}", s.handleDeleteSession)

	// Suggestions
	mux.HandleFunc("GET /v1/suggestions", s.handleListSuggestions)
	mux.HandleFunc("POST /v1/suggestions/{id}/accept", s.handleAcceptSuggestion)
	mux.HandleFunc("POST /v1/suggestions/{id}/reject", s.handleRejectSuggestion)

	// Ingredients
	mux.HandleFunc("GET /v1/ingredients", s.handleListIngredients)
	mux.HandleFunc("POST /v1/ingredients", s.handleCreateIngredient)
	mux.HandleFunc("GET /v1/ingredients/{id}", s.handleGetIngredient)
	mux.HandleFunc("PUT /v1/ingredients/{id}", s.handleUpdateIngredient)
	mux.HandleFunc("DELETE /v1/ingredients/{id}", s.handleDeleteIngredient)
	mux.HandleFunc("POST /v1/ingredients/{id}/image", s.handleIngredientImage)

	// Preps
	mux.HandleFunc("GET /v1/preps", s.handleListPreps)
	mux.HandleFunc("POST /v1/preps", s.handleCreatePrep)
	mux.HandleFunc("PUT /v1/preps/{id}", s.handleUpdatePrep)

	// Reservations
	mux.HandleFunc("GET /v1/reservations", s.handleListReservations)
	mux.HandleFunc("POST /v1/reservations", s.handleCreateReservation)
	mux.HandleFunc("DELETE /v1/reservations/{id}", s.handleDeleteReservation)

	// Sales, press, translations
	mux.HandleFunc("GET /v1/sales", s.handleListSales)
	mux.HandleFunc("POST /v1/sales", s.handleCreateSales)
	mux.HandleFunc("GET /v1/press", s.handleListPress)
	mux.HandleFunc("POST /v1/press", s.handleCreatePress)
	mux.HandleFunc("GET /v1/translations", s.handleListTranslations)
	mux.HandleFunc("POST /v1/translations", s.handleCreateTranslation)

	return observe.Middleware(s.metrics)(mux)
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.sessions.start()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.CertFile != "")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown stops accepting new requests, closes all dictation sessions, and
// drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()

		s.sessions.stop()
		if s.httpSrv != nil {
			err = s.httpSrv.Shutdown(ctx)
		}
	})
	return err
}
