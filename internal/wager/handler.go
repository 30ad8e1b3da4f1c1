package wager

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/grade-stakes/grade_stakes/internal/ledger"
)

// Handler exposes wager creation, listing and cancellation endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wager HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	CounterParty string     `json:"counter_party"`
	Visibility   string     `json:"visibility"`
	CourseCode   string     `json:"course_code"`
	Term         string     `json:"term"`
	Assessment   string     `json:"assessment"`
	Lower        float64    `json:"lower"`
	Upper        float64    `json:"upper"`
	StakeCents   int64      `json:"stake_cents"`
	Note         string     `json:"note"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

type outcomeResponse struct {
	Winner    string    `json:"winner,omitempty"`
	Grade     float64   `json:"grade,omitempty"`
	Reason    string    `json:"reason"`
	DecidedAt time.Time `json:"decided_at"`
}

type wagerResponse struct {
	ID           string           `json:"id"`
	Creator      string           `json:"creator"`
	CounterParty string           `json:"counter_party,omitempty"`
	Visibility   string           `json:"visibility"`
	CourseCode   string           `json:"course_code"`
	Term         string           `json:"term"`
	Assessment   string           `json:"assessment"`
	Lower        float64          `json:"lower"`
	Upper        float64          `json:"upper"`
	StakeCents   int64            `json:"stake_cents"`
	Note         string           `json:"note,omitempty"`
	State        string           `json:"state"`
	Outcome      *outcomeResponse `json:"outcome,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	AcceptedAt   *time.Time       `json:"accepted_at,omitempty"`
}

// ToResponse shapes a wager for API clients. Hold ids stay internal.
func ToResponse(w Wager) any {
	resp := wagerResponse{
		ID:           w.ID,
		Creator:      w.Creator,
		CounterParty: w.CounterParty,
		Visibility:   string(w.Visibility),
		CourseCode:   w.CourseCode,
		Term:         w.Term,
		Assessment:   w.Assessment,
		Lower:        w.Lower,
		Upper:        w.Upper,
		StakeCents:   w.StakeCents,
		Note:         w.Note,
		State:        string(w.State),
		CreatedAt:    w.CreatedAt,
		ExpiresAt:    w.ExpiresAt,
		AcceptedAt:   w.AcceptedAt,
	}
	if w.Outcome != nil {
		resp.Outcome = &outcomeResponse{
			Winner:    w.Outcome.Winner,
			Grade:     w.Outcome.Grade,
			Reason:    w.Outcome.Reason,
			DecidedAt: w.Outcome.DecidedAt,
		}
	}
	return resp
}

func toResponses(ws []Wager) []any {
	out := make([]any, 0, len(ws))
	for _, w := range ws {
		out = append(out, ToResponse(w))
	}
	return out
}

// Create opens a wager for the authenticated user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	creator, _ := c.Locals("user").(string)

	w, err := h.service.Create(c.UserContext(), CreateInput{
		Creator:      creator,
		CounterParty: req.CounterParty,
		Visibility:   req.Visibility,
		CourseCode:   req.CourseCode,
		Term:         req.Term,
		Assessment:   req.Assessment,
		Lower:        req.Lower,
		Upper:        req.Upper,
		StakeCents:   req.StakeCents,
		Note:         req.Note,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusPaymentRequired, "insufficient funds")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(ToResponse(w))
}

// ListMine lists wagers the user is party to, optionally by state.
func (h *Handler) ListMine(c *fiber.Ctx) error {
	username := c.Params("username")
	stateFilter := c.Params("status", "any")

	wagers, err := h.service.ListByUser(c.UserContext(), username, stateFilter)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wagers": toResponses(wagers)})
}

// ListOpen lists public open wagers the given user could accept.
func (h *Handler) ListOpen(c *fiber.Ctx) error {
	username := c.Params("username")
	wagers, err := h.service.ListOpen(c.UserContext(), username)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wagers": toResponses(wagers)})
}

// Cancel withdraws an unmatched wager created by the authenticated user.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	requestor, _ := c.Locals("user").(string)

	w, err := h.service.Cancel(c.UserContext(), c.Params("id"), requestor)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "wager not found")
		case errors.Is(err, ErrNotCreator):
			return fiber.NewError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrAlreadyMatched):
			return fiber.NewError(http.StatusConflict, "wager already matched")
		case errors.Is(err, ErrInvalidTransition):
			return fiber.NewError(http.StatusConflict, "wager already settled")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(ToResponse(w))
}
