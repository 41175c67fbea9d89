package common

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stacklok/toolhive-wallet-sync/internal/bridge"
	"github.com/stacklok/toolhive-wallet-sync/internal/service"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	if statusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	WriteJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}

// StatusForError maps service errors to HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrWalletNotStarted):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotLoaded),
		errors.Is(err, service.ErrInvalidated),
		errors.Is(err, bridge.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError writes err with the status StatusForError picks.
// Internal errors are logged and replaced by a generic message.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusForError(err)
	if code == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteErrorResponse(w, "internal error", code)
		return
	}
	WriteErrorResponse(w, err.Error(), code)
}
