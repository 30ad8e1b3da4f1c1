package wager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/grade-stakes/grade_stakes/internal/ledger"
)

// Stake bounds in cents: every wager risks between $5.00 and $500.00 per side.
const (
	MinStakeCents = 500
	MaxStakeCents = 50_000
)

var (
	// ErrValidation marks a request rejected before any state change.
	ErrValidation = errors.New("validation failed")

	// ErrNotCreator indicates a cancel attempt by someone other than the creator.
	ErrNotCreator = errors.New("only the creator may cancel a wager")
)

var validate = validator.New()

// Service owns wager creation, cancellation, listing and expiration.
// Acceptance lives in the matching package, resolution in settlement.
type Service struct {
	store  Store
	ledger ledger.Ledger
	logger *slog.Logger
}

// NewService builds a wager service.
func NewService(store Store, ledgerBackend ledger.Ledger, logger *slog.Logger) *Service {
	return &Service{store: store, ledger: ledgerBackend, logger: logger}
}

// CreateInput captures the data required to open a wager.
type CreateInput struct {
	Creator      string  `validate:"required"`
	CounterParty string  // non-empty makes the wager directed (pending)
	Visibility   string  `validate:"omitempty,oneof=public private"`
	CourseCode   string  `validate:"required"`
	Term         string  `validate:"required"`
	Assessment   string  `validate:"required"`
	Lower        float64 `validate:"gte=0,lte=100"`
	Upper        float64 `validate:"gte=0,lte=100"`
	StakeCents   int64   `validate:"required,gte=500,lte=50000"`
	Note         string  `validate:"max=500"`
	ExpiresAt    *time.Time
}

// Create validates the input, escrows the creator's stake and persists the
// wager. The escrow is refunded if persisting fails, so a failed create
// never leaves money held.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wager, error) {
	if err := validate.Struct(input); err != nil {
		return Wager{}, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if input.Lower > input.Upper {
		return Wager{}, fmt.Errorf("%w: lower bound exceeds upper bound", ErrValidation)
	}
	if input.CounterParty == input.Creator && input.CounterParty != "" {
		return Wager{}, fmt.Errorf("%w: cannot direct a wager at yourself", ErrValidation)
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(time.Now()) {
		return Wager{}, fmt.Errorf("%w: expiration must be in the future", ErrValidation)
	}

	visibility := Visibility(input.Visibility)
	if visibility == "" {
		visibility = VisibilityPublic
	}

	state := StateOpen
	if input.CounterParty != "" {
		state = StatePending
	}

	id := uuid.NewString()
	hold, err := s.ledger.Escrow(ctx, input.Creator, id, input.StakeCents)
	if err != nil {
		return Wager{}, err
	}

	w := Wager{
		ID:            id,
		Creator:       input.Creator,
		CounterParty:  input.CounterParty,
		Visibility:    visibility,
		CourseCode:    input.CourseCode,
		Term:          input.Term,
		Assessment:    input.Assessment,
		Lower:         input.Lower,
		Upper:         input.Upper,
		StakeCents:    input.StakeCents,
		Note:          input.Note,
		State:         state,
		CreatorHoldID: hold.ID,
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     input.ExpiresAt,
	}
	if err := s.store.Create(ctx, w); err != nil {
		if _, relErr := s.ledger.Release(ctx, hold.ID, input.Creator); relErr != nil {
			s.logger.Error("orphaned escrow after failed wager create",
				slog.String("wager_id", id), slog.String("hold_id", hold.ID), slog.Any("error", relErr))
		}
		return Wager{}, err
	}

	s.logger.Info("wager created",
		slog.String("wager_id", w.ID),
		slog.String("creator", w.Creator),
		slog.String("state", string(w.State)),
		slog.Int64("stake_cents", w.StakeCents))
	return w, nil
}

// ensureCreatorRefund releases the creator's hold back to them unless it
// was already paid out. The released guard in the ledger keeps the refund
// at-most-once under concurrent retries.
func (s *Service) ensureCreatorRefund(ctx context.Context, w Wager) error {
	if w.CreatorHoldID == "" {
		return nil
	}
	released, err := s.ledger.HoldReleased(ctx, w.CreatorHoldID)
	if err != nil {
		return err
	}
	if released {
		return nil
	}
	if _, err := s.ledger.Release(ctx, w.CreatorHoldID, w.Creator); err != nil && !errors.Is(err, ledger.ErrUnknownHold) {
		return err
	}
	return nil
}

// Get returns a wager by id.
func (s *Service) Get(ctx context.Context, id string) (Wager, error) {
	return s.store.Get(ctx, id)
}

// ListByUser returns wagers the user is party to. stateFilter "any"
// or empty lists everything.
func (s *Service) ListByUser(ctx context.Context, username, stateFilter string) ([]Wager, error) {
	var state *State
	if stateFilter != "" && stateFilter != "any" {
		parsed, ok := ParseState(stateFilter)
		if !ok {
			return nil, fmt.Errorf("%w: unknown state %q", ErrValidation, stateFilter)
		}
		state = &parsed
	}
	return s.store.ListByUser(ctx, username, state)
}

// ListOpen returns public open wagers the user could accept.
func (s *Service) ListOpen(ctx context.Context, excludingUser string) ([]Wager, error) {
	return s.store.ListOpenExcluding(ctx, excludingUser)
}

// Cancel withdraws an unmatched wager and refunds the creator's stake.
func (s *Service) Cancel(ctx context.Context, id, requestor string) (Wager, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Wager{}, err
	}
	if current.Creator != requestor {
		return Wager{}, ErrNotCreator
	}
	if current.State == StateCancelled {
		// A previous cancel may have committed the transition without
		// completing the refund; finish it and return the stored record.
		if err := s.ensureCreatorRefund(ctx, current); err != nil {
			return Wager{}, err
		}
		return current, nil
	}

	outcome := Outcome{Reason: "cancelled by creator", DecidedAt: time.Now().UTC()}
	w, err := s.store.Terminate(ctx, id, StateCancelled, outcome, StateOpen, StatePending)
	if err != nil {
		return Wager{}, err
	}

	if err := s.ensureCreatorRefund(ctx, w); err != nil {
		s.logger.Error("refund after cancel failed",
			slog.String("wager_id", id), slog.String("hold_id", w.CreatorHoldID), slog.Any("error", err))
		return Wager{}, err
	}

	s.logger.Info("wager cancelled", slog.String("wager_id", id), slog.String("creator", requestor))
	return w, nil
}

// ExpireSweep transitions unmatched wagers past their expiration and
// refunds their creators. Safe to run concurrently with accepts: the CAS
// in Terminate means each wager expires or matches, never both.
func (s *Service) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	for _, state := range []State{StateOpen, StatePending} {
		wagers, err := s.store.ListInState(ctx, state)
		if err != nil {
			return expired, err
		}
		for _, w := range wagers {
			if !w.Expired(now) {
				continue
			}
			outcome := Outcome{Reason: "expired unmatched", DecidedAt: now.UTC()}
			terminated, err := s.store.Terminate(ctx, w.ID, StateExpired, outcome, StateOpen, StatePending)
			if err != nil {
				// Lost a race with an accept or a cancel; skip quietly.
				if errors.Is(err, ErrAlreadyMatched) || errors.Is(err, ErrInvalidTransition) {
					continue
				}
				return expired, err
			}
			if err := s.ensureCreatorRefund(ctx, terminated); err != nil {
				s.logger.Error("refund after expiry failed",
					slog.String("wager_id", w.ID), slog.Any("error", err))
				continue
			}
			expired++
		}
	}

	// Finish refunds that failed after an earlier sweep already expired
	// the wager; the ledger's released guard makes this a no-op for the
	// rest.
	expiredWagers, err := s.store.ListInState(ctx, StateExpired)
	if err != nil {
		return expired, err
	}
	for _, w := range expiredWagers {
		if err := s.ensureCreatorRefund(ctx, w); err != nil {
			s.logger.Error("refund after expiry failed",
				slog.String("wager_id", w.ID), slog.Any("error", err))
		}
	}
	if expired > 0 {
		s.logger.Info("expiry sweep completed", slog.Int("expired", expired))
	}
	return expired, nil
}
