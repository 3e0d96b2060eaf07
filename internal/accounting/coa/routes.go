package coa

import "github.com/go-chi/chi/v5"

// MountRoutes shares the /clients/{clientID}/accounts prefix with the account API.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/import", h.Import)
	r.Get("/export", h.Export)
	r.Post("/seed", h.Seed)
}
