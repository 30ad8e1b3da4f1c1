package oracle

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes grade-source session linking.
type Handler struct {
	link *LinkService
}

func NewHandler(link *LinkService) *Handler {
	return &Handler{link: link}
}

type linkRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	Username  string    `json:"username"`
	Valid     bool      `json:"valid"`
	CheckedAt time.Time `json:"checked_at"`
}

// Link stores the caller's grade-source session token after verifying it.
func (h *Handler) Link(c *fiber.Ctx) error {
	var req linkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Token == "" {
		return fiber.NewError(http.StatusBadRequest, "token is required")
	}
	username, _ := c.Locals("user").(string)

	token, err := h.link.Link(c.UserContext(), username, req.Token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return fiber.NewError(http.StatusBadRequest, "token failed verification")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(tokenResponse{
		Username:  token.Username,
		Valid:     token.Valid,
		CheckedAt: token.CheckedAt,
	})
}

// Status reports whether the caller's stored token is still usable.
func (h *Handler) Status(c *fiber.Ctx) error {
	username, _ := c.Locals("user").(string)

	token, err := h.link.Status(c.UserContext(), username)
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return fiber.NewError(http.StatusNotFound, "no linked token")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(tokenResponse{
		Username:  token.Username,
		Valid:     token.Valid,
		CheckedAt: token.CheckedAt,
	})
}
