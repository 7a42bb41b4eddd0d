// Package server exposes the upload and denoise operations over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"medidenoise/pkg/config"
	"medidenoise/pkg/service"
)

// SessionCookie carries the session id between upload and denoise
const SessionCookie = "medidenoise_session"

const shutdownTimeout = 10 * time.Second

// Server wires the HTTP routes to a service
type Server struct {
	svc    *service.Service
	cfg    *config.Config
	logger zerolog.Logger
}

// New creates a server for svc
func New(svc *service.Service, cfg *config.Config, logger zerolog.Logger) *Server {
	return &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
	}
}

// Handler returns the routed handler with CORS and request logging applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.UploadHandler)
	mux.HandleFunc("POST /denoise", s.DenoiseHandler)
	mux.HandleFunc("GET /health", s.HealthHandler)

	return s.logRequests(corsMiddleware(s.cfg.Server.AllowOrigin, mux))
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
