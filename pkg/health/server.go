// Package health serves liveness, readiness and bot status over HTTP.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dotsetgreg/aizoo/pkg/logger"
)

type Server struct {
	addr      string
	router    chi.Router
	server    *http.Server
	startedAt time.Time

	mu     sync.RWMutex
	ready  func() bool
	status func() any
}

func NewServer(host string, port int) *Server {
	s := &Server{
		addr:      net.JoinHostPort(host, strconv.Itoa(port)),
		startedAt: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/status", s.handleStatus)
	s.router = r

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetReadyFunc installs the readiness probe. Without one the server is
// never ready.
func (s *Server) SetReadyFunc(fn func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = fn
}

// SetStatusFunc installs the JSON body served on /status.
func (s *Server) SetStatusFunc(fn func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = fn
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	return s.addr
}

// Start blocks serving until Stop. It returns http.ErrServerClosed after a
// clean stop.
func (s *Server) Start() error {
	logger.InfoCF("health", "Health server listening", map[string]any{"addr": s.addr})
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown health server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	if ready == nil || !ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	if status == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "status not available"})
		return
	}
	writeJSON(w, http.StatusOK, status())
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WarnCF("health", "Failed to encode response", map[string]any{"error": err.Error()})
	}
}
