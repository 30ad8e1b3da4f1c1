package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Credentials{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return fiber.NewError(http.StatusConflict, "username already taken")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(userResponse{Username: user.Username, Email: user.Email})
}

// List returns all registered usernames, for counter-party pickers.
func (h *Handler) List(c *fiber.Ctx) error {
	usernames, err := h.service.List(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"users": usernames})
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	username, _ := c.Locals("user").(string)
	return c.Status(http.StatusOK).JSON(fiber.Map{"username": username})
}
