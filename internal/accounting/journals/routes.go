package journals

import "github.com/go-chi/chi/v5"

// MountRoutes expects /clients/{clientID}/entities/{entityID}/journal-entries.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{entryID}", h.Get)
	r.Patch("/{entryID}", h.Update)
	r.Delete("/{entryID}", h.Delete)
	r.Post("/{entryID}/post", h.Post)
	r.Post("/{entryID}/void", h.Void)
	r.Post("/{entryID}/reverse", h.Reverse)
}

// MountClientRoutes expects /clients/{clientID}/journal-entries.
func (h *Handler) MountClientRoutes(r chi.Router) {
	r.Get("/", h.ListClient)
	r.Get("/integrity", h.Integrity)
}
