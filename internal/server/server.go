// Package server exposes learner sessions over HTTP and a websocket view
// stream.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/p-n-ai/learnpath/internal/session"
)

// SessionCookie carries the session ID.
const SessionCookie = "learnpath_session"

const healthTimeout = 2 * time.Second

// HealthChecker is implemented by dependencies that /readyz pings.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds dependencies for a Server.
type Config struct {
	Sessions *session.Manager
	// Checks are pinged by /readyz, keyed by name.
	Checks map[string]HealthChecker
	// SessionTTL sets the cookie lifetime; zero makes it a browser-session
	// cookie.
	SessionTTL time.Duration
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	// OriginPatterns lists extra hosts allowed to open the websocket.
	OriginPatterns []string
}

// Server serves the wizard API.
type Server struct {
	sessions       *session.Manager
	checks         map[string]HealthChecker
	sessionTTL     time.Duration
	secureCookies  bool
	originPatterns []string
}

// New creates a Server.
func New(cfg Config) *Server {
	return &Server{
		sessions:       cfg.Sessions,
		checks:         cfg.Checks,
		sessionTTL:     cfg.SessionTTL,
		secureCookies:  cfg.SecureCookies,
		originPatterns: cfg.OriginPatterns,
	}
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /api/grade-levels", s.handleGradeLevels)
	mux.HandleFunc("POST /api/session", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/session", s.handleEndSession)
	mux.HandleFunc("GET /api/state", s.withSession(s.handleState))
	mux.HandleFunc("PUT /api/topic", s.withSession(s.handleSetTopic))
	mux.HandleFunc("POST /api/modules", s.withSession(s.handleRequestModules))
	mux.HandleFunc("POST /api/modules/{index}/select", s.withSession(s.handleSelectModule))
	mux.HandleFunc("POST /api/back/modules", s.withSession(s.handleBackToModules))
	mux.HandleFunc("POST /api/back/topic", s.withSession(s.handleBackToTopic))
	mux.HandleFunc("POST /api/reset", s.withSession(s.handleReset))
	mux.HandleFunc("GET /api/export.xlsx", s.withSession(s.handleExport))
	mux.HandleFunc("GET /api/ws", s.handleStream)
	return logRequests(mux)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeJSON writes JSON responses with a consistent content type.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is needed by the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
