package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RegisterRoutes registers the data and optimisation routes under /api
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/objective", h.HandleGetObjective)
		r.Get("/correlation", h.HandleGetCorrelation)
		r.Get("/assumptions", h.HandleGetAssumptions)

		r.Route("/data", func(r chi.Router) {
			r.Get("/preview", h.HandleGetPreview)
			// Downloads can be slow
			r.With(middleware.Timeout(120*time.Second)).Post("/refresh", h.HandleRefreshData)
		})

		r.Post("/mvo", h.HandleRunMVO)
		r.Post("/black-litterman", h.HandleRunBlackLitterman)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.HandleListRuns)
			r.Get("/{id}", h.HandleGetRun)
		})
	})
}
