// Package server wires the collaboration service's HTTP surface.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"collab-dashboard/internal/document"
	"collab-dashboard/internal/export"
	"collab-dashboard/internal/hub"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Pinger is a backing service reported by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type check struct {
	name   string
	pinger Pinger
}

type Server struct {
	hub        *hub.Hub
	documents  *document.DocumentHandler
	exports    *export.ExportHandler
	corsOrigin string
	logger     *slog.Logger
	checks     []check
}

type Option func(*Server)

// WithHealthCheck adds a dependency to /api/health. The endpoint answers
// 503 while any check fails.
func WithHealthCheck(name string, p Pinger) Option {
	return func(s *Server) { s.checks = append(s.checks, check{name: name, pinger: p}) }
}

func New(h *hub.Hub, documents *document.DocumentHandler, exports *export.ExportHandler, corsOrigin string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		hub:        h,
		documents:  documents,
		exports:    exports,
		corsOrigin: corsOrigin,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.withRequestLog, s.withCORS)

	r.HandleFunc("/api/health", s.health).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/ws/document", s.hub.ServeWS)
	r.HandleFunc("/ws", s.hub.ServeWS)

	for _, path := range []string{"/document", "/api/documents", "/api/documents/"} {
		r.HandleFunc(path, s.documents.GetDocument).Methods(http.MethodGet)
		r.HandleFunc(path, s.documents.SaveDocument).Methods(http.MethodPut)
	}
	r.HandleFunc("/document/export", s.exports.ExportDocument).Methods(http.MethodGet)

	// Preflight for any route.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	snap, err := s.hub.Snapshot(ctx)
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}

	ok := true
	checks := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.pinger.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "check", c.name, "err", err)
			checks[c.name] = err.Error()
			ok = false
			continue
		}
		checks[c.name] = "ok"
	}

	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":           ok,
		"participants": len(snap.Roster),
		"checks":       checks,
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
