package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BrasasLabs/Anfitrion/internal/models"
)

// healthHandler provides the liveness endpoint. No business logic is
// attached; it exists so process supervisors can probe the bot.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"business":  s.profile.Name,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if count, err := s.sessions.Count(); err != nil {
		slog.Warn("Health check: failed to count sessions", "error", err)
		healthData["status"] = "degraded"
	} else {
		healthData["active_sessions"] = count
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}

// sessionsHandler exposes a read-only snapshot of the per-customer sessions
// for operational debugging.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessions, err := s.sessions.List()
	if err != nil {
		slog.Error("Server.sessionsHandler: failed to list sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}
