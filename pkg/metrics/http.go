package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/staticd/internal/logger"
)

// HTTPServer exposes the registry at /metrics on its own port.
type HTTPServer struct {
	server       *http.Server
	port         int
	shutdownOnce sync.Once
}

// NewHTTPServer creates a stopped metrics server bound to host:port.
func NewHTTPServer(host string, port int) *HTTPServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	return &HTTPServer{
		server: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		port: port,
	}
}

// Start serves until ctx is cancelled. Returns nil on graceful shutdown.
func (s *HTTPServer) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Safe to call more than once.
func (s *HTTPServer) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if err = s.server.Shutdown(ctx); err != nil {
			err = fmt.Errorf("metrics server shutdown error: %w", err)
		}
	})
	return err
}

// Port returns the configured port.
func (s *HTTPServer) Port() int {
	return s.port
}
