package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// startOps brings up the HTTP operations listener when configured.
// It serves liveness, Prometheus metrics and a small status document;
// the scene protocol itself never touches this listener.
func (s *Server) startOps(wg *sync.WaitGroup) (*http.Server, error) {
	if s.config.OpsAddr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", s.config.OpsAddr)
	if err != nil {
		return nil, fmt.Errorf("ops listen %s: %w", s.config.OpsAddr, err)
	}
	s.mu.Lock()
	s.opsLn = ln
	s.mu.Unlock()

	ops := &http.Server{
		Handler:           s.opsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("ops listening", "addr", ln.Addr().String())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ops.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ops server failed", "error", err)
		}
	}()
	return ops, nil
}

func (s *Server) opsHandler() http.Handler {
	gatherer, ok := s.config.Registry.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		status := map[string]any{
			"server":  "scenewire",
			"clients": s.clients.len(),
			"queue":   len(s.loop.jobs),
			"uptime":  time.Since(started).Round(time.Second).String(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})

	return r
}
