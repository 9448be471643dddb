package infra

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// HTTPServer serves the webhook router and stops with the process context.
type HTTPServer struct {
	server *http.Server
	grace  time.Duration
}

// NewHTTPServer builds a server on cfg.Port. Writes are bounded by
// HTTPWriteTimeout; shutdown waits up to HTTPIdleTimeout for in-flight
// webhooks.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}
	grace := cfg.HTTPIdleTimeout
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &HTTPServer{server: srv, grace: grace}
}

func (s *HTTPServer) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Serve accepts on ln until ctx is done, then shuts down gracefully. A
// graceful stop returns nil.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	if s.server == nil {
		return nil
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run listens on the configured address and serves until ctx is done.
func (s *HTTPServer) Run(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
