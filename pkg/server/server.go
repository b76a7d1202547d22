package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/security/auth"
	"mercator-hq/policysync/pkg/telemetry/health"
)

// DefaultShutdownTimeout bounds the graceful shutdown triggered by ctx.
const DefaultShutdownTimeout = 5 * time.Second

// Server is the telemetry HTTP server.
type Server struct {
	cfg     config.MetricsConfig
	checker *health.Checker
	metrics http.Handler
	logger  *slog.Logger

	mu           sync.RWMutex
	httpServer   *http.Server
	listener     net.Listener
	running      bool
	shutdownOnce sync.Once
}

// New creates a server for cfg.ListenAddress. metrics is mounted on
// cfg.Path when cfg.Enabled is set.
func New(cfg config.MetricsConfig, checker *health.Checker, metrics http.Handler) *Server {
	if checker == nil {
		checker = health.New(0)
	}
	return &Server{
		cfg:     cfg,
		checker: checker,
		metrics: metrics,
		logger:  slog.Default().With("component", "server"),
	}
}

// Start binds the listen address and serves in the background until ctx is
// done or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server is already running")
	}
	if s.httpServer != nil {
		return fmt.Errorf("server cannot be restarted")
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.running = true

	s.logger.Info("serving telemetry",
		"address", ln.Addr().String(),
		"metrics", s.cfg.Enabled && s.metrics != nil)

	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("telemetry server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during telemetry server shutdown", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server. Only the first call has an effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		srv, running := s.httpServer, s.running
		s.mu.RUnlock()
		if !running {
			return
		}

		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.logger.Info("telemetry server stopped")
	})
	return shutdownErr
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler returns the routes of the server wrapped in panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.checker.Mount(mux)
	if s.cfg.Enabled && s.metrics != nil {
		var h http.Handler = s.metrics
		if s.cfg.BearerToken != "" {
			h = auth.NewMiddleware(auth.NewTokenValidator(s.cfg.BearerToken)).Handle(h)
		}
		mux.Handle(s.cfg.Path, h)
	}
	return s.recover(mux)
}

func (s *Server) recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in telemetry handler", "path", r.URL.Path, "panic", rec)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
