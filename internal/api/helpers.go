// Package api implements the Unix-socket HTTP control plane (C6).
package api

import (
	"encoding/json"
	"net/http"

	"github.com/hatlabs/halpid/internal/config"
	"github.com/hatlabs/halpid/internal/device"
)

// AppError is a structured HTTP error, trimmed to the wire shape spec.md
// mandates: {"error": string}.
type AppError struct {
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func (e *AppError) Error() string { return e.Message }

func errNotFound(msg string) *AppError   { return &AppError{Message: msg, Status: http.StatusNotFound} }
func errBadRequest(msg string) *AppError { return &AppError{Message: msg, Status: http.StatusBadRequest} }
func errInternal(msg string) *AppError {
	return &AppError{Message: msg, Status: http.StatusInternalServerError}
}

// Handlers holds the dependencies every route handler needs: the single
// device owner and the live daemon config.
type Handlers struct {
	owner   *device.Owner
	cfg     *config.Watcher
	version string
}

// NewHandlers returns a Handlers bound to owner and cfg, reporting version
// for /version and /values.
func NewHandlers(owner *device.Owner, cfg *config.Watcher, version string) *Handlers {
	return &Handlers{owner: owner, cfg: cfg, version: version}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if appErr, ok := err.(*AppError); ok {
		w.WriteHeader(appErr.Status)
		_ = json.NewEncoder(w).Encode(appErr)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(&AppError{Message: err.Error()})
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
