// Package httpapi assembles the HTTP surface: middleware, operational
// endpoints, and the domain handlers.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdcam/pkg/platform/httputil"
	"cdcam/pkg/platform/middleware/request"
)

// Registrar is implemented by domain handlers that mount routes.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires middleware and mounts every handler.
func NewRouter(logger *slog.Logger, registry *prometheus.Registry, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Logger(logger))
	r.Use(request.Recovery(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}
