package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes a Prometheus registry over HTTP at /metrics on a single
// address, for the Prometheus toggle named in the ambient-stack
// configuration. cli.Build starts one Server, on the first address in
// config.BasicService.Addresses; further addresses are not served.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

// NewServer returns a Server that serves reg at addr.
func NewServer(addr string, reg *prometheus.Registry, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{Addr: addr, Handler: mux},
		log: log,
	}
}

// Start begins serving in the background. Errors after startup are logged,
// not returned, matching the teacher's fire-and-forget auxiliary service
// pattern (RPC/Prometheus/pprof each run detached from the main loop).
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
