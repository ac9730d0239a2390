package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/wonny/gapwatch/pkg/config"
	"github.com/wonny/gapwatch/pkg/logger"
)

// Server serves the dataset and scheduler API
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	config     *config.Config
	withJobs   bool
}

// New creates the API server. withJobs reports whether checkpoint jobs run
// in the same process.
func New(cfg *config.Config, log *logger.Logger, router http.Handler, withJobs bool) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second, // full-day CSV downloads
			IdleTimeout:       60 * time.Second,
		},
		logger:   log.WithField("component", "api"),
		config:   cfg,
		withJobs: withJobs,
	}
}

// Start listens on the configured port and blocks until Shutdown
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.Serve(l)
}

// Serve serves on l until Shutdown
func (s *Server) Serve(l net.Listener) error {
	s.logger.WithFields(map[string]interface{}{
		"addr":           l.Addr().String(),
		"storage":        s.config.Storage.Backend,
		"universe":       s.config.Pipeline.UniverseSource,
		"timezone":       s.config.Pipeline.Timezone,
		"with_scheduler": s.withJobs,
	}).Info("Serving datasets")

	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight downloads
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
