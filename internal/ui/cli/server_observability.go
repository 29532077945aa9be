package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"phelnav/internal/core/session"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthChecker is satisfied by *session.Session.
type healthChecker interface {
	Health(ctx context.Context) session.HealthStatus
}

type ObservabilityServer struct {
	addr   string
	health healthChecker
	server *http.Server
}

func NewObservabilityServer(addr string, health healthChecker) *ObservabilityServer {
	return &ObservabilityServer{
		addr:   addr,
		health: health,
	}
}

func (s *ObservabilityServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := s.health.Health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if status.Status == "down" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})
	return mux
}

func (s *ObservabilityServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.handler(),
	}

	slog.Info("observability server starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("observability server failed", "error", err)
		}
	}()

	return nil
}

func (s *ObservabilityServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
