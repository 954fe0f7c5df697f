package quotations

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/quotations", h.List)
	r.Post("/quotations", h.Create)
	r.Get("/quotations/{id}", h.Show)
	r.Patch("/quotations/{id}", h.Update)
	r.Delete("/quotations/{id}", h.Delete)
	r.Post("/quotations/{id}/transition", h.Transition)
}
