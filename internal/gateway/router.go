// ABOUTME: Route table for the HTTP API
// ABOUTME: Maps paths to handlers, splits /api/sessions/{id} subpaths and applies CORS

package gateway

import (
	"net/http"
	"os"
	"strings"
)

// registerRoutes wires every endpoint onto mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	mux.HandleFunc("/api/messages", g.handleMessages)
	mux.HandleFunc("/api/sessions", g.handleListSessions)
	mux.HandleFunc("/api/sessions/", g.handleSessionRoutes)
}

// handleSessionRoutes dispatches /api/sessions/{id} and /api/sessions/{id}/events.
func (g *Gateway) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		g.sendJSONError(w, http.StatusBadRequest, "Invalid sessionId format", "session id is required")
		return
	}
	sessionID := parts[0]

	switch {
	case len(parts) == 1:
		g.handleGetSession(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "events":
		g.handleSessionEvents(w, r, sessionID)
	default:
		g.sendJSONError(w, http.StatusNotFound, "Not found", r.URL.Path)
	}
}

// corsMiddleware allows browser frontends to call the API. The allowed
// origin comes from FRONTEND_URL; when unset every origin is allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowed := os.Getenv("FRONTEND_URL")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed == "" || origin == allowed) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+idempotencyHeader)
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
