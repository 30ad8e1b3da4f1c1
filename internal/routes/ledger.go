package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/grade-stakes/grade_stakes/internal/ledger"
)

// RegisterLedgerRoutes wires balance and deposit endpoints.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	group := r.Group("/balance")
	group.Get("", h.Balance)
	group.Post("/deposit", h.Deposit)
}
