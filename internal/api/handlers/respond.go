// Package handlers holds the HTTP handlers of the journey and route endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"seatstitch/internal/journey"
)

// helper for consistent JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// best-effort encode; in the event of error there's not much we can do
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, journey.Failure(msg))
}
