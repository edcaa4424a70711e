// Package server exposes the gutensearch service roles over HTTP: the
// ingestor, the indexer and the searcher each mount their routes on a chi
// router behind shared middleware, JSON rendering and error mapping.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server runs one service role's HTTP surface.
type Server struct {
	addr       string
	handler    http.Handler
	log        *slog.Logger
	httpServer *http.Server
}

// New mounts the role routes behind the shared middleware stack.
func New(addr string, routes func(chi.Router), log *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Handle("/metrics", promhttp.Handler())
	routes(r)

	return &Server{addr: addr, handler: r, log: log}
}

// Start binds the listen address and serves in the background. Fatal serve
// errors are delivered on the returned channel.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", s.addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info("http server started", "addr", s.addr)
	return errCh, nil
}

// Shutdown drains in-flight requests and stops serving.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("http server stopping", "addr", s.addr)
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness for one role.
func healthHandler(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "role": role})
	}
}
