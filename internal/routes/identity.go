package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/grade-stakes/grade_stakes/internal/identity"
)

// RegisterIdentityRoutes wires user registration and listing.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/users", h.Register)
	r.Get("/users", h.List)
}
