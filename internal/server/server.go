// Package server exposes the agent's local control endpoints: health, sync
// metrics, the queue snapshot and a manual sync trigger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mnemoapp/mnemo/internal/cache"
	"github.com/mnemoapp/mnemo/internal/queue"
	"github.com/mnemoapp/mnemo/internal/syncer"
)

const defaultAllowOrigin = "http://localhost:3000"

type Server struct {
	queue       *queue.Queue
	coordinator *syncer.Coordinator
	cache       *cache.Cache
	allowOrigin string
	log         *slog.Logger
	httpServer  *http.Server
}

type Option func(*Server)

// WithAllowOrigin sets the origin allowed by the CORS middleware.
func WithAllowOrigin(origin string) Option {
	return func(s *Server) {
		s.allowOrigin = origin
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func New(addr string, q *queue.Queue, coordinator *syncer.Coordinator, c *cache.Cache, opts ...Option) *Server {
	s := &Server{
		queue:       q,
		coordinator: coordinator,
		cache:       c,
		allowOrigin: defaultAllowOrigin,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler builds the route table wrapped in CORS and h2c so HTTP/2 clients
// work without TLS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/queue/snapshot", s.handleQueueSnapshot)
	mux.HandleFunc("POST /api/sync", s.handleSync)

	return s.corsMiddleware(h2c.NewHandler(mux, &http2.Server{}))
}

func (s *Server) ListenAndServe() error {
	s.log.Info("starting server", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpServer.ListenAndServe() > %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpServer.Shutdown() > %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	health := s.queue.Health()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"queue":  health.Level,
	})
}

type metricsResponse struct {
	Cache  cache.Metrics      `json:"cache"`
	Queue  queue.Metrics      `json:"queue"`
	Health queue.HealthReport `json:"health"`
	Online bool               `json:"online"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, metricsResponse{
		Cache:  s.cache.Metrics(),
		Queue:  s.queue.Metrics(),
		Health: s.queue.Health(),
		Online: s.coordinator.Online(),
	})
}

func (s *Server) handleQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.queue.Snapshot()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	go s.coordinator.ForceSync(context.Background())
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", slog.Any("error", err))
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
