// Package server exposes the JSON API for alert management and operational
// endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"unihousing-notifier/pkg/housing"
)

// AlertManager is the lifecycle surface the handlers call into.
type AlertManager interface {
	Create(ctx context.Context, ownerID, city, apartmentType string, desiredFrom, desiredTo time.Time) (*housing.Alert, error)
	ToggleActive(ctx context.Context, alertID string) (*housing.Alert, error)
	Delete(ctx context.Context, alertID string) error
	RescanAll(ctx context.Context) error
	RecheckListing(ctx context.Context, listingID string) error
}

// FeedStatus reports whether the change-feed listener is consuming.
type FeedStatus interface {
	IsRunning() bool
}

// IsNotFound classifies storage lookup misses.
type IsNotFound func(error) bool

// Server handles HTTP requests.
type Server struct {
	manager    AlertManager
	feed       FeedStatus
	logger     *slog.Logger
	isNotFound IsNotFound
	limiter    *rateLimiter
}

// Config holds server configuration.
type Config struct {
	Manager    AlertManager
	Feed       FeedStatus
	Logger     *slog.Logger
	IsNotFound IsNotFound
}

// New creates an HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		manager:    cfg.Manager,
		feed:       cfg.Feed,
		logger:     cfg.Logger,
		isNotFound: cfg.IsNotFound,
		limiter:    newRateLimiter(),
	}
}

// Router builds the route table.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/rescanz", s.handleRescan)
	mux.HandleFunc("/alerts", s.handleCreateAlert)
	mux.HandleFunc("/alerts/toggle", s.handleToggleAlert)
	mux.HandleFunc("/alerts/delete", s.handleDeleteAlert)
	mux.HandleFunc("/listings/recheck", s.handleRecheckListing)
	return mux
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully. Timeouts prevent resource exhaustion from slow clients.
func (s *Server) Serve(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"service": "unihousing-notifier"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"feed_running": s.feed.IsRunning(),
	})
}

// handleRescan triggers the full matching pass, the manual counterpart of the
// scheduled one.
func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.logger.Info("Rescan endpoint triggered")

	if err := s.manager.RescanAll(r.Context()); err != nil {
		s.logger.Error("Rescan failed", "error", err)
		writeError(w, http.StatusInternalServerError, "rescan failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody parses a small JSON request body, rejecting unknown fields and
// oversized payloads.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// Trailing garbage after the object is a malformed request.
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For is set by the Cloud Run front end.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// rateLimiter caps alert creations per IP per hour.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string][]time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		clients: make(map[string][]time.Time),
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Hour)

	var recent []time.Time
	for _, ts := range rl.clients[ip] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= 10 {
		return false
	}

	recent = append(recent, now)
	rl.clients[ip] = recent
	return true
}
