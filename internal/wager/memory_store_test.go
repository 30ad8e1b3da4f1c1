package wager

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedWager(t *testing.T, store Store, state State) Wager {
	t.Helper()
	w := Wager{
		ID:            "w-1",
		Creator:       "alicia",
		Visibility:    VisibilityPublic,
		CourseCode:    "COMP3506",
		Term:          "2026S1",
		Assessment:    "Final Exam",
		Lower:         70,
		Upper:         100,
		StakeCents:    2_000,
		State:         state,
		CreatorHoldID: "hold-creator",
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.Create(context.Background(), w); err != nil {
		t.Fatalf("create: %v", err)
	}
	return w
}

func TestAcceptClaimsExactlyOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedWager(t, store, StateOpen)

	first, err := store.Accept(ctx, "w-1", "bruno", "hold-bruno")
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if first.State != StateAccepted || first.CounterParty != "bruno" {
		t.Fatalf("unexpected accepted wager: %+v", first)
	}
	if first.AcceptedAt == nil {
		t.Fatalf("expected AcceptedAt to be set")
	}

	if _, err := store.Accept(ctx, "w-1", "carla", "hold-carla"); !errors.Is(err, ErrAlreadyMatched) {
		t.Fatalf("expected ErrAlreadyMatched, got %v", err)
	}
}

func TestTerminateRequiresFromState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedWager(t, store, StateOpen)

	// Settling an open wager must fail: there is no counter-party.
	if _, err := store.Terminate(ctx, "w-1", StateWon, Outcome{}, StateAccepted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	outcome := Outcome{Reason: "cancelled by creator", DecidedAt: time.Now().UTC()}
	w, err := store.Terminate(ctx, "w-1", StateCancelled, outcome, StateOpen, StatePending)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if w.State != StateCancelled || w.Outcome == nil {
		t.Fatalf("unexpected terminated wager: %+v", w)
	}

	// Terminal states admit no further transitions.
	if _, err := store.Terminate(ctx, "w-1", StateVoid, Outcome{}, StateCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on terminal wager, got %v", err)
	}
}

func TestListOpenExcludingHidesPrivateAndOwn(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	wagers := []Wager{
		{ID: "w-1", Creator: "alicia", Visibility: VisibilityPublic, State: StateOpen, CreatedAt: time.Now()},
		{ID: "w-2", Creator: "bruno", Visibility: VisibilityPublic, State: StateOpen, CreatedAt: time.Now()},
		{ID: "w-3", Creator: "bruno", Visibility: VisibilityPrivate, State: StateOpen, CreatedAt: time.Now()},
		{ID: "w-4", Creator: "bruno", Visibility: VisibilityPublic, State: StatePending, CounterParty: "carla", CreatedAt: time.Now()},
	}
	for _, w := range wagers {
		if err := store.Create(ctx, w); err != nil {
			t.Fatalf("create %s: %v", w.ID, err)
		}
	}

	open, err := store.ListOpenExcluding(ctx, "alicia")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 || open[0].ID != "w-2" {
		t.Fatalf("expected only w-2, got %+v", open)
	}
}
