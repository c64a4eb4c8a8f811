package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-purifier/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system/metrics", s.handleSystemMetrics)

		r.Route("/capabilities", func(r chi.Router) {
			r.Get("/", s.handleListCapabilities)
			r.Get("/{model}", s.handleGetCapability)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.With(s.requirePermission(auth.PermEntryConfigure)).Post("/", s.handleCreateDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/status", s.handleGetStatus)
				r.Get("/diagnostics", s.handleGetDiagnostics)
				r.Get("/issues", s.handleGetIssues)
				r.Get("/services/log", s.handleServiceLog)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermEntryOperate))
					r.Put("/controls/{key}", s.handleSetControl)
					r.Post("/services/{name}", s.handleCallService)
				})

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermEntryConfigure))
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Post("/reload", s.handleReloadDevice)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"entries_total":  s.registry.GetDeviceCount(),
		"entries_loaded": s.orch.Count(),
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}
