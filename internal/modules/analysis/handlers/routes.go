package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk analysis routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/profile", h.HandleGetProfile)
		r.Get("/profile.csv", h.HandleGetProfileCSV)
		r.Get("/copula", h.HandleGetCopula)
		r.Post("/stress", h.HandlePostStress)

		r.Get("/var/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetVarEs(w, r, chi.URLParam(r, "symbol"))
		})
		r.Get("/garch/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetGarch(w, r, chi.URLParam(r, "symbol"))
		})
		r.Get("/drawdown/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetDrawdown(w, r, chi.URLParam(r, "symbol"))
		})
	})
}
