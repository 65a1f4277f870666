package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prudhvinik1/syncengine/internal/observability"
)

func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(h.withTraceID)
	router.Use(h.withLogging)
	router.Use(observability.TracingMiddleware)

	router.Get("/health", h.health)

	// routes without authorization
	router.Group(func(r chi.Router) {
		r.Post("/api/auth/register", h.register)
		r.Post("/api/auth/login", h.login)
	})

	router.Group(func(r chi.Router) {
		r.Use(h.auth)

		r.Post("/api/auth/logout", h.logout)

		r.Route("/api/sync", func(r chi.Router) {
			r.Post("/push", h.push)
			r.Post("/pull", h.pull)
			r.Get("/snapshot", h.snapshot)
		})

		r.Route("/api/devices", func(r chi.Router) {
			r.Post("/", h.registerDevice)
			r.Get("/", h.listDevices)
			r.Get("/{deviceID}", h.getDevice)
			r.Delete("/{deviceID}", h.deactivateDevice)
			r.Post("/{deviceID}/heartbeat", h.heartbeat)
		})

		r.Route("/api/conflicts", func(r chi.Router) {
			r.Get("/", h.listConflicts)
			r.Post("/{conflictID}/resolve", h.resolveConflict)
		})
	})

	return router
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
