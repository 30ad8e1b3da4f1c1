package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/grade-stakes/grade_stakes/internal/catalog"
)

// RegisterCatalogRoutes wires the course/assessment catalogue.
func RegisterCatalogRoutes(r fiber.Router, h *catalog.Handler) {
	group := r.Group("/catalog")
	group.Post("/courses", h.AddCourse)
	group.Get("/courses", h.ListCourses)
	group.Post("/assessments", h.AddAssessment)
	group.Get("/assessments/:course/:term", h.ListAssessments)
	group.Post("/aliases", h.AddAlias)
}
