package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServer serves the comic API. Timeouts come from Config; generation
// itself runs in coordinator goroutines, so handlers stay fast and the
// write timeout can be tight.
type HTTPServer struct {
	server *http.Server
	logger *Logger
	grace  time.Duration
}

// NewHTTPServer wires the handler into a server with the configured
// timeouts. The idle timeout doubles as the shutdown grace period.
func NewHTTPServer(cfg *Config, logger *Logger, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler,
			ReadTimeout:       cfg.HTTPReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.HTTPWriteTimeout,
			IdleTimeout:       cfg.HTTPIdleTimeout,
		},
		logger: logger,
		grace:  cfg.HTTPIdleTimeout,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests within
// the grace period. A clean stop returns nil.
func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("api listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("infra: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("infra: shutdown: %w", err)
	}
	s.logger.Info().Msg("api stopped")
	return nil
}
