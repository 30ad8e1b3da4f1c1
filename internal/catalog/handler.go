package catalog

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the course and assessment catalogue.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

type courseRequest struct {
	Code  string `json:"code"`
	LMSID string `json:"lms_id"`
	Name  string `json:"name"`
}

type assessmentRequest struct {
	CourseCode string  `json:"course_code"`
	Term       string  `json:"term"`
	Name       string  `json:"name"`
	Weight     float64 `json:"weight"`
}

type aliasRequest struct {
	ProfileName   string `json:"profile_name"`
	GradebookName string `json:"gradebook_name"`
}

// AddCourse registers a course code and its grade-source id.
func (h *Handler) AddCourse(c *fiber.Ctx) error {
	var req courseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Code == "" || req.LMSID == "" {
		return fiber.NewError(http.StatusBadRequest, "code and lms_id are required")
	}
	course := Course{Code: req.Code, LMSID: req.LMSID, Name: req.Name}
	if err := h.repo.AddCourse(c.UserContext(), course); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(course)
}

// ListCourses returns every known course.
func (h *Handler) ListCourses(c *fiber.Ctx) error {
	courses, err := h.repo.ListCourses(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"courses": courses})
}

// AddAssessment registers an assessment for a course and term.
func (h *Handler) AddAssessment(c *fiber.Ctx) error {
	var req assessmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.CourseCode == "" || req.Term == "" || req.Name == "" {
		return fiber.NewError(http.StatusBadRequest, "course_code, term and name are required")
	}
	if _, err := h.repo.GetCourse(c.UserContext(), req.CourseCode); err != nil {
		if errors.Is(err, ErrCourseNotFound) {
			return fiber.NewError(http.StatusNotFound, "course not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	a := Assessment{CourseCode: req.CourseCode, Term: req.Term, Name: req.Name, Weight: req.Weight}
	if err := h.repo.AddAssessment(c.UserContext(), a); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(a)
}

// ListAssessments returns the assessments for a course and term.
func (h *Handler) ListAssessments(c *fiber.Ctx) error {
	assessments, err := h.repo.ListAssessments(c.UserContext(), c.Params("course"), c.Params("term"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"assessments": assessments})
}

// AddAlias maps a course-profile assessment name onto its gradebook name.
func (h *Handler) AddAlias(c *fiber.Ctx) error {
	var req aliasRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.ProfileName == "" || req.GradebookName == "" {
		return fiber.NewError(http.StatusBadRequest, "profile_name and gradebook_name are required")
	}
	alias := Alias{ProfileName: req.ProfileName, GradebookName: req.GradebookName}
	if err := h.repo.AddAlias(c.UserContext(), alias); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(alias)
}
