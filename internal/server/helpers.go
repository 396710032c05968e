package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cwbudde/adaptivexp/internal/store"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind store.Kind) int {
	switch kind {
	case store.KindNotFound:
		return http.StatusNotFound
	case store.KindInvalidConfiguration, store.KindUnsupportedOperation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as an ErrorResponse with the matching status.
func writeError(w http.ResponseWriter, err error) {
	kind := store.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: kind.String(), Detail: err.Error()})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
