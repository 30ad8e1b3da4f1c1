package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/grade-stakes/grade_stakes/internal/matching"
	"github.com/grade-stakes/grade_stakes/internal/settlement"
	"github.com/grade-stakes/grade_stakes/internal/wager"
)

// RegisterWagerRoutes wires the wager lifecycle endpoints.
func RegisterWagerRoutes(r fiber.Router, wh *wager.Handler, mh *matching.Handler, sh *settlement.Handler) {
	group := r.Group("/bets")
	group.Post("", wh.Create)
	group.Get("/open/:username", wh.ListOpen)
	group.Get("/:username/:status", wh.ListMine)
	group.Post("/:id/accept", mh.Accept)
	group.Post("/:id/cancel", wh.Cancel)
	group.Post("/:id/settle", sh.Settle)
}
