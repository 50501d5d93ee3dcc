package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/septivank/utility-billing-service/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPServer wraps the API handler in an http.Server with timeouts and a
// request rate limiter
type HTTPServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewHTTPServer creates the HTTP server around the handler's routes
func NewHTTPServer(cfg *config.Config, handler *Handler, logger *zap.Logger) *HTTPServer {
	limiter := rate.NewLimiter(rate.Limit(cfg.Server.RateLimitPerSecond), cfg.Server.RateLimitPerSecond*2)

	return &HTTPServer{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      withRateLimit(limiter, handler.Routes()),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		logger: logger,
	}
}

// Start begins serving in a background goroutine
func (s *HTTPServer) Start() {
	go func() {
		s.logger.Info("HTTP server starting", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the server down
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
