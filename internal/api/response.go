// Package api provides the HTTP server and process bootstrap for Anfitrion.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSONResponse writes a JSON payload with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode JSON response", "error", err, "status_code", statusCode)
	}
}
