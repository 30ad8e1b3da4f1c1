package ledger

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes balance lookup and deposits.
type Handler struct {
	ledger Ledger
}

func NewHandler(backend Ledger) *Handler {
	return &Handler{ledger: backend}
}

type depositRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type accountResponse struct {
	Username       string `json:"username"`
	AvailableCents int64  `json:"available_cents"`
	EscrowedCents  int64  `json:"escrowed_cents"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		Username:       a.Username,
		AvailableCents: a.Available,
		EscrowedCents:  a.Escrowed,
	}
}

// Balance returns the authenticated user's available and escrowed funds.
func (h *Handler) Balance(c *fiber.Ctx) error {
	username, _ := c.Locals("user").(string)

	account, err := h.ledger.Account(c.UserContext(), username)
	if err != nil {
		if errors.Is(err, ErrUnknownAccount) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toAccountResponse(account))
}

// Deposit credits the authenticated user's available balance.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.AmountCents <= 0 {
		return fiber.NewError(http.StatusBadRequest, "amount_cents must be positive")
	}
	username, _ := c.Locals("user").(string)

	account, err := h.ledger.Deposit(c.UserContext(), username, req.AmountCents)
	if err != nil {
		if errors.Is(err, ErrUnknownAccount) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toAccountResponse(account))
}
