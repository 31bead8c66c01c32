package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the HTTP router with all routes configured. The stats
// route is only mounted when the handler carries an analytics store.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger))
	r.Use(Recovery(h.logger))

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/evaluate", h.Evaluate)
		r.Post("/batch-evaluate", h.BatchEvaluate)
		r.Get("/models", h.Models)
		if h.stats != nil {
			r.Get("/stats", h.Stats)
		}
	})

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)
	return r
}
