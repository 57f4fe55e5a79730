package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ems/dispatch/internal/abtest"
	"ems/dispatch/internal/config"
	"ems/dispatch/internal/monitoring"
	"ems/dispatch/internal/prediction"
	"ems/dispatch/internal/service"
	"ems/dispatch/internal/store"
	"ems/dispatch/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Deps are the domain components the handlers call.
type Deps struct {
	History     store.HistoryStore
	Assignments *service.Service
	Splitter    *abtest.Splitter
	Predictor   *prediction.Adapter
	Drift       *monitoring.DriftMonitor
	Alerts      *monitoring.AlertManager
	Health      *monitoring.HealthChecker
	Scheduler   *monitoring.Scheduler
}

// Server wires configuration, dependencies and HTTP routing together.
type Server struct {
	cfg       config.Config
	log       zerolog.Logger
	deps      Deps
	validate  *validator.Validate
	authMw    *AuthMiddleware
	startedAt time.Time
	closers   []func()
}

// New builds every dependency from cfg, connecting to the configured backends.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	deps, closers, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	srv := NewWithDeps(cfg, log, deps)
	srv.closers = closers

	if cfg.Keycloak.Enabled {
		authMw, err := NewAuthMiddleware(ctx, cfg.Keycloak, log)
		if err != nil {
			srv.Close()
			return nil, err
		}
		srv.authMw = authMw
	}
	return srv, nil
}

// NewWithDeps builds a server around ready components. Authentication is off.
func NewWithDeps(cfg config.Config, log zerolog.Logger, deps Deps) *Server {
	return &Server{
		cfg:       cfg,
		log:       log,
		deps:      deps,
		validate:  validation.New(),
		startedAt: time.Now().UTC(),
	}
}

// Close releases backend connections in reverse order of creation.
func (s *Server) Close() {
	if s.authMw != nil {
		s.authMw.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run starts the monitoring scheduler and the HTTP server and blocks until the context
// is cancelled or an unrecoverable error occurs.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Monitor.Enabled && s.deps.Scheduler != nil {
		go s.deps.Scheduler.Run(ctx)
	}

	httpServer := &http.Server{
		Addr:         s.cfg.HTTP.Address,
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	s.log.Info().Str("addr", s.cfg.HTTP.Address).Msg("http server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
