package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/grade-stakes/grade_stakes/internal/oracle"
)

// RegisterOracleRoutes wires grade-source token linking.
func RegisterOracleRoutes(r fiber.Router, h *oracle.Handler) {
	group := r.Group("/oracle/token")
	group.Post("", h.Link)
	group.Get("", h.Status)
}
