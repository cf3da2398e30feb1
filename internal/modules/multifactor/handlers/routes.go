package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all multifactor routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/multifactor", func(r chi.Router) {
		r.Get("/engines", h.ListEngines)
		r.Post("/engines", h.CreateEngine)

		r.Route("/engines/{name}", func(r chi.Router) {
			r.Delete("/", h.DeleteEngine)
			r.Post("/rebuild", h.Rebuild)

			r.Get("/factors", h.GetAllFactors)
			r.Get("/factors/{isin}", h.GetFactor)
			r.Get("/cross", h.GetAllCross)
			r.Get("/cross/{date}", h.GetCross)
			r.Get("/ic", h.GetIC)
			r.Get("/icir", h.GetICIR)
		})
	})
}

// pathParam reads a chi URL parameter.
func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
