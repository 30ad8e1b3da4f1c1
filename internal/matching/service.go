package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/grade-stakes/grade_stakes/internal/ledger"
	"github.com/grade-stakes/grade_stakes/internal/notification"
	"github.com/grade-stakes/grade_stakes/internal/wager"
)

var (
	// ErrSelfAccept indicates the creator tried to accept their own wager.
	ErrSelfAccept = errors.New("cannot accept your own wager")

	// ErrNotInvited indicates someone other than the named counter-party
	// tried to accept a directed wager.
	ErrNotInvited = errors.New("wager is directed at another user")
)

// Service matches open wagers to acceptors. The wager store's
// compare-and-swap guarantees at most one acceptor wins a race; the loser
// gets wager.ErrAlreadyMatched and their escrow is rolled back.
type Service struct {
	store    wager.Store
	ledger   ledger.Ledger
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService builds a matching service.
func NewService(store wager.Store, ledgerBackend ledger.Ledger, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, ledger: ledgerBackend, notifier: notifier, logger: logger}
}

// Accept escrows the acceptor's stake and claims the wager. The escrow is
// taken before the claim so a successful transition always has both holds;
// if the claim loses the race the acceptor's hold is refunded.
func (s *Service) Accept(ctx context.Context, wagerID, acceptor string) (wager.Wager, error) {
	current, err := s.store.Get(ctx, wagerID)
	if err != nil {
		return wager.Wager{}, err
	}
	if current.Creator == acceptor {
		return wager.Wager{}, ErrSelfAccept
	}
	if current.State == wager.StatePending && current.CounterParty != acceptor {
		return wager.Wager{}, ErrNotInvited
	}
	if current.State.Terminal() {
		return wager.Wager{}, wager.ErrInvalidTransition
	}
	if current.State == wager.StateAccepted {
		return wager.Wager{}, wager.ErrAlreadyMatched
	}

	hold, err := s.ledger.Escrow(ctx, acceptor, wagerID, current.StakeCents)
	if err != nil {
		return wager.Wager{}, err
	}

	accepted, err := s.store.Accept(ctx, wagerID, acceptor, hold.ID)
	if err != nil {
		if _, relErr := s.ledger.Release(ctx, hold.ID, acceptor); relErr != nil {
			s.logger.Error("orphaned escrow after lost acceptance race",
				slog.String("wager_id", wagerID), slog.String("hold_id", hold.ID), slog.Any("error", relErr))
		}
		return wager.Wager{}, err
	}

	s.logger.Info("wager accepted",
		slog.String("wager_id", wagerID),
		slog.String("acceptor", acceptor),
		slog.Int64("stake_cents", accepted.StakeCents))

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindWagerAccepted,
			Destination: accepted.Creator,
			Body:        fmt.Sprintf("%s accepted your %s wager on %s", acceptor, accepted.CourseCode, accepted.Assessment),
		})
	}

	return accepted, nil
}
