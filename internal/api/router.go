package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hatlabs/halpid/internal/config"
	"github.com/hatlabs/halpid/internal/device"
)

// NewRouter builds the control-plane router. There is no caller
// authentication here — socket permissions are the access boundary, per
// spec.md's Non-goals.
func NewRouter(owner *device.Owner, cfg *config.Watcher, version string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)

	h := NewHandlers(owner, cfg, version)

	r.Get("/", h.root)
	r.Get("/version", h.getVersion)

	r.Get("/values", h.getAllValues)
	r.Get("/values/{key}", h.getValue)

	r.Get("/config", h.getAllConfig)
	r.Get("/config/{key}", h.getConfig)
	r.Put("/config/{key}", h.putConfig)

	r.Get("/usb", h.getAllUSB)
	r.Put("/usb", h.putAllUSB)
	r.Get("/usb/{port}", h.getUSB)
	r.Put("/usb/{port}", h.putUSB)

	r.Post("/shutdown", h.postShutdown)
	r.Post("/standby", h.postStandby)

	r.Post("/flash", h.postFlash)

	return r
}
