package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-broadlink/internal/auth"
	"github.com/nerrad567/gray-logic-broadlink/internal/device"
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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.With(s.requirePermission(auth.PermDeviceRead)).Get("/stats", s.handleStats)

			r.Route("/devices", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleListDevices)

				r.Route("/{selector}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleGetDevice)
					r.With(s.requirePermission(auth.PermDeviceSend)).Post("/send", s.handleSend)
					r.With(s.requirePermission(auth.PermLearningRun)).Post("/learn/{kind}", s.handleStartLearning)
				})
			})

			r.With(s.requirePermission(auth.PermLearningRun)).Delete("/learning", s.handleStopLearning)
			r.With(s.requirePermission(auth.PermLearningRun)).Delete("/learning/{kind}", s.handleStopLearning)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	managed, active := 0, 0
	for _, h := range s.registry.Devices() {
		managed++
		if h.State() == device.StateActive {
			active++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         s.version,
		"devices_managed": managed,
		"devices_active":  active,
	})
}
