package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grade-stakes/grade_stakes/internal/ledger"
	"github.com/grade-stakes/grade_stakes/internal/notification"
	"github.com/grade-stakes/grade_stakes/internal/oracle"
	"github.com/grade-stakes/grade_stakes/internal/wager"
)

// ErrNotMatched indicates a settlement attempt on a wager that has no
// counter-party yet.
var ErrNotMatched = errors.New("wager not matched yet")

// Engine converts grade observations into terminal wager outcomes and the
// corresponding fund movement. Settlement is idempotent per wager: once a
// terminal state is recorded, later calls return the stored outcome and
// touch nothing.
type Engine struct {
	store    wager.Store
	ledger   ledger.Ledger
	oracle   oracle.Gateway
	notifier notification.Notifier
	logger   *slog.Logger

	// grace is how long after acceptance a wager may stay unresolved
	// before a not-yet-available grade voids it.
	grace time.Duration
}

// NewEngine builds a settlement engine.
func NewEngine(store wager.Store, ledgerBackend ledger.Ledger, gateway oracle.Gateway, notifier notification.Notifier, grace time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		ledger:   ledgerBackend,
		oracle:   gateway,
		notifier: notifier,
		logger:   logger,
		grace:    grace,
	}
}

// Settle resolves one wager against the oracle. Terminal wagers are
// returned unchanged. An accepted wager whose grade is not yet available
// and still within grace is also returned unchanged.
func (e *Engine) Settle(ctx context.Context, wagerID string) (wager.Wager, error) {
	current, err := e.store.Get(ctx, wagerID)
	if err != nil {
		return wager.Wager{}, err
	}
	if current.State.Terminal() {
		// The terminal transition and the payouts are separate writes; a
		// release that failed after the transition committed is finished
		// here before the stored outcome is returned.
		if err := e.ensureReleases(ctx, current); err != nil {
			return wager.Wager{}, err
		}
		return current, nil
	}
	if current.State != wager.StateAccepted {
		return wager.Wager{}, ErrNotMatched
	}

	// The oracle call happens before any transition so network latency is
	// never paid while a state change is in flight.
	result, err := e.oracle.FetchGrade(ctx, oracle.Query{
		Username:   current.Creator,
		CourseCode: current.CourseCode,
		Term:       current.Term,
		Assessment: current.Assessment,
	})
	if err != nil {
		return wager.Wager{}, err
	}

	switch result.Status {
	case oracle.StatusAvailable:
		return e.resolve(ctx, current, result.Percent)
	case oracle.StatusPermanentError:
		return e.void(ctx, current, "oracle permanent error")
	case oracle.StatusNotYetAvailable:
		if e.graceExceeded(current) {
			return e.void(ctx, current, "grade unavailable past grace deadline")
		}
		return current, nil
	default:
		return wager.Wager{}, fmt.Errorf("unknown oracle status %q", result.Status)
	}
}

func (e *Engine) graceExceeded(w wager.Wager) bool {
	if e.grace <= 0 || w.AcceptedAt == nil {
		return false
	}
	return time.Now().After(w.AcceptedAt.Add(e.grace))
}

// resolve records a won/lost outcome and pays both holds to the winner.
func (e *Engine) resolve(ctx context.Context, w wager.Wager, grade float64) (wager.Wager, error) {
	state := wager.StateLost
	winner := w.CounterParty
	if w.InInterval(grade) {
		state = wager.StateWon
		winner = w.Creator
	}

	outcome := wager.Outcome{
		Winner:    winner,
		Grade:     grade,
		Reason:    "grade available",
		DecidedAt: time.Now().UTC(),
	}

	terminated, err := e.store.Terminate(ctx, w.ID, state, outcome, wager.StateAccepted)
	if err != nil {
		return e.lostSettlementRace(ctx, w.ID, err)
	}

	if err := e.ensureReleases(ctx, terminated); err != nil {
		return wager.Wager{}, err
	}

	outcomesTotal.WithLabelValues(string(state)).Inc()
	e.logger.Info("wager settled",
		slog.String("wager_id", w.ID),
		slog.String("state", string(state)),
		slog.String("winner", winner),
		slog.Float64("grade", grade))

	e.notifyParties(ctx, terminated, fmt.Sprintf("wager on %s %s settled: %s wins", w.CourseCode, w.Assessment, winner))
	return terminated, nil
}

// void records a void outcome and refunds both sides.
func (e *Engine) void(ctx context.Context, w wager.Wager, reason string) (wager.Wager, error) {
	outcome := wager.Outcome{Reason: reason, DecidedAt: time.Now().UTC()}

	terminated, err := e.store.Terminate(ctx, w.ID, wager.StateVoid, outcome, wager.StateAccepted)
	if err != nil {
		return e.lostSettlementRace(ctx, w.ID, err)
	}

	if err := e.ledger.SplitRelease(ctx, terminated.CreatorHoldID, terminated.AcceptorHoldID); err != nil {
		// ErrUnknownHold means a concurrent retry already refunded at
		// least one side; finish the remainder hold by hold. Anything
		// else is retryable through the terminal branch of Settle.
		if !errors.Is(err, ledger.ErrUnknownHold) {
			e.logger.Error("void refund failed", slog.String("wager_id", w.ID), slog.Any("error", err))
			return wager.Wager{}, err
		}
		if err := e.ensureReleases(ctx, terminated); err != nil {
			return wager.Wager{}, err
		}
	}

	outcomesTotal.WithLabelValues(string(wager.StateVoid)).Inc()
	e.logger.Info("wager voided", slog.String("wager_id", w.ID), slog.String("reason", reason))

	e.notifyParties(ctx, terminated, fmt.Sprintf("wager on %s %s voided, stakes refunded", w.CourseCode, w.Assessment))
	return terminated, nil
}

// lostSettlementRace handles a CAS miss on the terminal transition: if a
// concurrent settlement already recorded an outcome, return it as the
// idempotent result instead of surfacing the conflict.
func (e *Engine) lostSettlementRace(ctx context.Context, wagerID string, transitionErr error) (wager.Wager, error) {
	if !errors.Is(transitionErr, wager.ErrInvalidTransition) && !errors.Is(transitionErr, wager.ErrAlreadyMatched) {
		return wager.Wager{}, transitionErr
	}
	current, err := e.store.Get(ctx, wagerID)
	if err != nil {
		return wager.Wager{}, err
	}
	if current.State.Terminal() {
		// The concurrent settler may have crashed between its transition
		// and its payouts.
		if err := e.ensureReleases(ctx, current); err != nil {
			return wager.Wager{}, err
		}
		return current, nil
	}
	return wager.Wager{}, transitionErr
}

// ensureReleases completes every hold release a terminal wager still owes.
// The ledger's released guard keeps each hold paid at most once, so this
// is safe to run on every read of a terminal wager and from concurrent
// settlement retries.
func (e *Engine) ensureReleases(ctx context.Context, w wager.Wager) error {
	type payout struct {
		holdID      string
		destination string
	}
	var payouts []payout
	switch w.State {
	case wager.StateWon:
		payouts = []payout{{w.CreatorHoldID, w.Creator}, {w.AcceptorHoldID, w.Creator}}
	case wager.StateLost:
		payouts = []payout{{w.CreatorHoldID, w.CounterParty}, {w.AcceptorHoldID, w.CounterParty}}
	case wager.StateVoid:
		payouts = []payout{{w.CreatorHoldID, w.Creator}, {w.AcceptorHoldID, w.CounterParty}}
	case wager.StateCancelled, wager.StateExpired:
		payouts = []payout{{w.CreatorHoldID, w.Creator}}
	default:
		return nil
	}

	for _, p := range payouts {
		if p.holdID == "" {
			continue
		}
		released, err := e.ledger.HoldReleased(ctx, p.holdID)
		if err != nil {
			return err
		}
		if released {
			continue
		}
		if _, err := e.ledger.Release(ctx, p.holdID, p.destination); err != nil {
			// A concurrent retry can claim the hold between the check
			// and the release.
			if errors.Is(err, ledger.ErrUnknownHold) {
				continue
			}
			e.logger.Error("payout release failed",
				slog.String("wager_id", w.ID), slog.String("hold_id", p.holdID), slog.Any("error", err))
			return err
		}
	}
	return nil
}

func (e *Engine) notifyParties(ctx context.Context, w wager.Wager, body string) {
	if e.notifier == nil {
		return
	}
	for _, user := range []string{w.Creator, w.CounterParty} {
		if user == "" {
			continue
		}
		_ = e.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindWagerSettled,
			Destination: user,
			Body:        body,
		})
	}
}
