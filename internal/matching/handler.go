package matching

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/grade-stakes/grade_stakes/internal/ledger"
	"github.com/grade-stakes/grade_stakes/internal/wager"
)

// Handler exposes the accept endpoint.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Accept matches the authenticated user against an open wager. Exactly one
// caller wins a contested wager; losers get a 409.
func (h *Handler) Accept(c *fiber.Ctx) error {
	acceptor, _ := c.Locals("user").(string)

	w, err := h.service.Accept(c.UserContext(), c.Params("id"), acceptor)
	if err != nil {
		switch {
		case errors.Is(err, wager.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "wager not found")
		case errors.Is(err, ErrSelfAccept):
			return fiber.NewError(http.StatusBadRequest, "cannot accept your own wager")
		case errors.Is(err, ErrNotInvited):
			return fiber.NewError(http.StatusForbidden, "wager is reserved for another user")
		case errors.Is(err, wager.ErrAlreadyMatched):
			return fiber.NewError(http.StatusConflict, "wager already matched")
		case errors.Is(err, wager.ErrInvalidTransition):
			return fiber.NewError(http.StatusConflict, "wager is no longer open")
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusPaymentRequired, "insufficient funds")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(wager.ToResponse(w))
}
