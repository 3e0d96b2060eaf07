package accounts

import "github.com/go-chi/chi/v5"

// MountRoutes expects to sit under /clients/{clientID}/accounts.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/tree", h.Tree)
	r.Get("/{accountID}", h.Get)
	r.Patch("/{accountID}", h.Update)
	r.Post("/{accountID}/deactivate", h.Deactivate)
	r.Delete("/{accountID}", h.Delete)
}
