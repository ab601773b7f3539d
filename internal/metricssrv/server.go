// Package metricssrv serves Prometheus metrics and the log-level control
// routes for a long-running dashclient process.
package metricssrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sevketarisu/quic-streaming/pkg/logging"
)

// Server is a minimal chi router exposing /metrics and the logging
// package's /loglevel routes, for observing a run in progress.
type Server struct {
	httpSrv *http.Server
	logger  *slog.Logger
}

// New builds the router and binds it to addr without starting to listen.
// reg is the registry the recorder's metrics were registered against; the
// /metrics endpoint must serve that gatherer, not the global default one,
// or the recorder's counters never show up.
func New(addr string, reg *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.SlogMiddleWare(logger))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	for _, route := range logging.LogRoutes {
		r.Method(route.Method, route.Path, route.Handler)
	}
	return &Server{
		httpSrv: &http.Server{Addr: addr, Handler: r},
		logger:  logger,
	}
}

// Start runs the server in a background goroutine. Bind errors other than
// a clean shutdown are logged, not returned, since the metrics endpoint is
// observability, not load-bearing for playback.
func (s *Server) Start() {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("metricssrv: shutdown: %w", err)
	}
	return nil
}
