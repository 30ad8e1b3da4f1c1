package settlement

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/grade-stakes/grade_stakes/internal/wager"
)

// Handler exposes on-demand settlement.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Settle resolves a matched wager against the grade source. Safe to call
// repeatedly; a settled wager is returned as stored.
func (h *Handler) Settle(c *fiber.Ctx) error {
	w, err := h.engine.Settle(c.UserContext(), c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, wager.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "wager not found")
		case errors.Is(err, ErrNotMatched):
			return fiber.NewError(http.StatusConflict, "wager not matched yet")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(wager.ToResponse(w))
}
