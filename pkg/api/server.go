package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vigilo-nms/accessd/internal/logger"
	"github.com/vigilo-nms/accessd/pkg/acl"
	"github.com/vigilo-nms/accessd/pkg/config"
	"github.com/vigilo-nms/accessd/pkg/store"
)

// Server wraps the HTTP server with lifecycle management.
type Server struct {
	httpServer      *http.Server
	addr            string
	shutdownTimeout time.Duration
	evaluator       *acl.Evaluator
}

// NewServer builds the API server from the configuration.
func NewServer(cfg *config.Config, st store.Store) (*Server, error) {
	evaluator := acl.New(acl.Config{
		AdminGroups: acl.ParseAdminGroups(cfg.Auth.AdminGroups),
	}, st)

	router, err := NewRouter(cfg, st, evaluator)
	if err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}

	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
			IdleTimeout:  cfg.API.IdleTimeout,
		},
		addr:            addr,
		shutdownTimeout: cfg.ShutdownTimeout,
		evaluator:       evaluator,
	}, nil
}

// ReloadAuth applies a freshly loaded configuration to the running
// server. Only the admin-group set is swappable at runtime; listen
// addresses and timeouts need a restart.
func (s *Server) ReloadAuth(cfg *config.Config) {
	s.evaluator.SetAdminGroups(acl.ParseAdminGroups(cfg.Auth.AdminGroups))
	logger.Info("admin groups reloaded", "admin_groups", cfg.Auth.AdminGroups)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Serve runs the server until ctx is cancelled, then shuts down
// gracefully within the given timeout.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}
