package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grade-stakes/grade_stakes/internal/ledger"
	"github.com/grade-stakes/grade_stakes/internal/logging"
	"github.com/grade-stakes/grade_stakes/internal/oracle"
	"github.com/grade-stakes/grade_stakes/internal/wager"
)

type fixture struct {
	engine  *Engine
	store   wager.Store
	backend ledger.Ledger
	gateway *oracle.StaticGateway
}

func newFixture(t *testing.T, grace time.Duration) *fixture {
	t.Helper()
	backend := ledger.NewInMemory()
	store := wager.NewMemoryStore()
	gateway := oracle.NewStaticGateway()
	engine := NewEngine(store, backend, gateway, nil, grace, logging.Discard())
	return &fixture{engine: engine, store: store, backend: backend, gateway: gateway}
}

// acceptedWager seeds two funded accounts and a matched wager with both
// stakes escrowed.
func (f *fixture) acceptedWager(t *testing.T, acceptedAt time.Time) wager.Wager {
	t.Helper()
	ctx := context.Background()
	ledger.SeedBalance(f.backend, "alicia", 10_000)
	ledger.SeedBalance(f.backend, "bruno", 10_000)

	creatorHold, err := f.backend.Escrow(ctx, "alicia", "w-1", 2_000)
	if err != nil {
		t.Fatalf("creator escrow: %v", err)
	}
	acceptorHold, err := f.backend.Escrow(ctx, "bruno", "w-1", 2_000)
	if err != nil {
		t.Fatalf("acceptor escrow: %v", err)
	}

	w := wager.Wager{
		ID:             "w-1",
		Creator:        "alicia",
		CounterParty:   "bruno",
		Visibility:     wager.VisibilityPublic,
		CourseCode:     "COMP3506",
		Term:           "2026S1",
		Assessment:     "Final Exam",
		Lower:          70,
		Upper:          100,
		StakeCents:     2_000,
		State:          wager.StateAccepted,
		CreatorHoldID:  creatorHold.ID,
		AcceptorHoldID: acceptorHold.ID,
		CreatedAt:      acceptedAt.Add(-time.Hour),
		AcceptedAt:     &acceptedAt,
	}
	if err := f.store.Create(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}
	return w
}

func (f *fixture) query() oracle.Query {
	return oracle.Query{Username: "alicia", CourseCode: "COMP3506", Term: "2026S1", Assessment: "Final Exam"}
}

func TestSettleGradeInsideIntervalPaysCreator(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.acceptedWager(t, time.Now())
	f.gateway.SetGrade(f.query(), 85)

	w, err := f.engine.Settle(ctx, "w-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if w.State != wager.StateWon {
		t.Fatalf("expected won, got %s", w.State)
	}
	if w.Outcome == nil || w.Outcome.Winner != "alicia" || w.Outcome.Grade != 85 {
		t.Fatalf("unexpected outcome: %+v", w.Outcome)
	}

	alicia, _ := f.backend.Account(ctx, "alicia")
	bruno, _ := f.backend.Account(ctx, "bruno")
	if alicia.Available != 12_000 || alicia.Escrowed != 0 {
		t.Fatalf("winner: expected 12000/0, got %d/%d", alicia.Available, alicia.Escrowed)
	}
	if bruno.Available != 8_000 || bruno.Escrowed != 0 {
		t.Fatalf("loser: expected 8000/0, got %d/%d", bruno.Available, bruno.Escrowed)
	}
}

func TestSettleGradeOutsideIntervalPaysAcceptor(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.acceptedWager(t, time.Now())
	f.gateway.SetGrade(f.query(), 62.5)

	w, err := f.engine.Settle(ctx, "w-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if w.State != wager.StateLost {
		t.Fatalf("expected lost, got %s", w.State)
	}
	if w.Outcome == nil || w.Outcome.Winner != "bruno" {
		t.Fatalf("unexpected outcome: %+v", w.Outcome)
	}

	bruno, _ := f.backend.Account(ctx, "bruno")
	if bruno.Available != 12_000 || bruno.Escrowed != 0 {
		t.Fatalf("winner: expected 12000/0, got %d/%d", bruno.Available, bruno.Escrowed)
	}
}

func TestSettleBoundaryGradeIsInside(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.acceptedWager(t, time.Now())
	f.gateway.SetGrade(f.query(), 70)

	w, err := f.engine.Settle(ctx, "w-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if w.State != wager.StateWon {
		t.Fatalf("inclusive lower bound: expected won, got %s", w.State)
	}
}

func TestSettleGradeNotYetAvailableWithinGrace(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.acceptedWager(t, time.Now())
	// No grade seeded: the static gateway reports not-yet-available.

	before := ledger.TotalFunds(f.backend)
	w, err := f.engine.Settle(ctx, "w-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if w.State != wager.StateAccepted {
		t.Fatalf("expected wager untouched, got %s", w.State)
	}
	if got := ledger.TotalFunds(f.backend); got != before {
		t.Fatalf("funds moved on a pending grade: %d != %d", got, before)
	}
}

func TestSettleGraceExceededVoids(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.acceptedWager(t, time.Now().Add(-2*time.Hour))

	w, err := f.engine.Settle(ctx, "w-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if w.State != wager.StateVoid {
		t.Fatalf("expected void, got %s", w.State)
	}

	alicia, _ := f.backend.Account(ctx, "alicia")
	bruno, _ := f.backend.Account(ctx, "bruno")
	if alicia.Available != 10_000 || bruno.Available != 10_000 {
		t.Fatalf("expected both refunded, got %d and %d", alicia.Available, bruno.Available)
	}
}

func TestSettlePermanentOracleErrorVoids(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.acceptedWager(t, time.Now())
	f.gateway.SetResult(f.query(), oracle.GradeResult{Status: oracle.StatusPermanentError})

	w, err := f.engine.Settle(ctx, "w-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if w.State != wager.StateVoid {
		t.Fatalf("expected void, got %s", w.State)
	}

	alicia, _ := f.backend.Account(ctx, "alicia")
	if alicia.Available != 10_000 || alicia.Escrowed != 0 {
		t.Fatalf("expected refund, got %d/%d", alicia.Available, alicia.Escrowed)
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.acceptedWager(t, time.Now())
	f.gateway.SetGrade(f.query(), 85)

	first, err := f.engine.Settle(ctx, "w-1")
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	fundsAfterFirst := ledger.TotalFunds(f.backend)
	alicia, _ := f.backend.Account(ctx, "alicia")

	second, err := f.engine.Settle(ctx, "w-1")
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if second.State != first.State || second.Outcome == nil || second.Outcome.Winner != first.Outcome.Winner {
		t.Fatalf("second settle diverged: %+v vs %+v", second, first)
	}

	// The repeat must be a pure read: no hold is released twice.
	if got := ledger.TotalFunds(f.backend); got != fundsAfterFirst {
		t.Fatalf("funds changed on repeat settle: %d != %d", got, fundsAfterFirst)
	}
	again, _ := f.backend.Account(ctx, "alicia")
	if again.Available != alicia.Available {
		t.Fatalf("winner paid twice: %d != %d", again.Available, alicia.Available)
	}
}

// flakyLedger fails the n-th Release call, modelling a transient backend
// error between the terminal transition and the payout.
type flakyLedger struct {
	ledger.Ledger
	mu     sync.Mutex
	calls  int
	failOn int
}

func (f *flakyLedger) Release(ctx context.Context, holdID, destination string) (int64, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.failOn
	f.mu.Unlock()
	if fail {
		return 0, errors.New("connection reset by peer")
	}
	return f.Ledger.Release(ctx, holdID, destination)
}

func TestSettleRecoversFromFailedRelease(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.acceptedWager(t, time.Now())
	f.gateway.SetGrade(f.query(), 85)

	flaky := &flakyLedger{Ledger: f.backend, failOn: 2}
	engine := NewEngine(f.store, flaky, f.gateway, nil, time.Hour, logging.Discard())

	if _, err := engine.Settle(ctx, "w-1"); err == nil {
		t.Fatalf("expected first settle to fail on the second release")
	}

	// The transition committed before the payout failed.
	w, err := f.store.Get(ctx, "w-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w.State != wager.StateWon {
		t.Fatalf("expected won after failed payout, got %s", w.State)
	}

	// The retry must finish the outstanding release, not just read the
	// stored outcome.
	settled, err := engine.Settle(ctx, "w-1")
	if err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	if settled.State != wager.StateWon {
		t.Fatalf("expected won, got %s", settled.State)
	}

	alicia, _ := f.backend.Account(ctx, "alicia")
	bruno, _ := f.backend.Account(ctx, "bruno")
	if alicia.Available != 12_000 || alicia.Escrowed != 0 {
		t.Fatalf("winner: expected 12000/0, got %d/%d", alicia.Available, alicia.Escrowed)
	}
	if bruno.Available != 8_000 || bruno.Escrowed != 0 {
		t.Fatalf("loser: expected 8000/0, got %d/%d", bruno.Available, bruno.Escrowed)
	}
	if got := ledger.TotalFunds(f.backend); got != 20_000 {
		t.Fatalf("funds not conserved: %d", got)
	}
}

func TestSettleVoidRecoversFromFailedRefund(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.acceptedWager(t, time.Now())
	f.gateway.SetResult(f.query(), oracle.GradeResult{Status: oracle.StatusPermanentError})

	failing := &failingSplitLedger{Ledger: f.backend, failures: 1}
	engine := NewEngine(f.store, failing, f.gateway, nil, time.Hour, logging.Discard())

	if _, err := engine.Settle(ctx, "w-1"); err == nil {
		t.Fatalf("expected first settle to fail on the refund")
	}

	settled, err := engine.Settle(ctx, "w-1")
	if err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	if settled.State != wager.StateVoid {
		t.Fatalf("expected void, got %s", settled.State)
	}

	alicia, _ := f.backend.Account(ctx, "alicia")
	bruno, _ := f.backend.Account(ctx, "bruno")
	if alicia.Available != 10_000 || alicia.Escrowed != 0 || bruno.Available != 10_000 || bruno.Escrowed != 0 {
		t.Fatalf("expected both refunded in full, got %d/%d and %d/%d",
			alicia.Available, alicia.Escrowed, bruno.Available, bruno.Escrowed)
	}
}

// failingSplitLedger fails the first SplitRelease call.
type failingSplitLedger struct {
	ledger.Ledger
	mu       sync.Mutex
	failures int
}

func (f *failingSplitLedger) SplitRelease(ctx context.Context, holdA, holdB string) error {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return f.Ledger.SplitRelease(ctx, holdA, holdB)
}

func TestConcurrentSettleSingleOutcome(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	f.acceptedWager(t, time.Now())
	f.gateway.SetGrade(f.query(), 85)

	const settlers = 4
	var wg sync.WaitGroup
	results := make(chan error, settlers)
	for i := 0; i < settlers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Settle(ctx, "w-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			t.Fatalf("concurrent settle: %v", err)
		}
	}

	w, err := f.store.Get(ctx, "w-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w.State != wager.StateWon || w.Outcome == nil || w.Outcome.Winner != "alicia" {
		t.Fatalf("unexpected terminal wager: %+v", w)
	}

	// Exactly one payout of the pot, no matter how many settlers raced.
	alicia, _ := f.backend.Account(ctx, "alicia")
	bruno, _ := f.backend.Account(ctx, "bruno")
	if alicia.Available != 12_000 || alicia.Escrowed != 0 {
		t.Fatalf("winner: expected 12000/0, got %d/%d", alicia.Available, alicia.Escrowed)
	}
	if bruno.Available != 8_000 || bruno.Escrowed != 0 {
		t.Fatalf("loser: expected 8000/0, got %d/%d", bruno.Available, bruno.Escrowed)
	}
	if got := ledger.TotalFunds(f.backend); got != 20_000 {
		t.Fatalf("funds not conserved: %d", got)
	}
}

func TestSettleUnmatchedWager(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	ledger.SeedBalance(f.backend, "alicia", 10_000)
	hold, err := f.backend.Escrow(ctx, "alicia", "w-open", 2_000)
	if err != nil {
		t.Fatalf("escrow: %v", err)
	}
	w := wager.Wager{
		ID:            "w-open",
		Creator:       "alicia",
		State:         wager.StateOpen,
		StakeCents:    2_000,
		CreatorHoldID: hold.ID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := f.store.Create(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.engine.Settle(ctx, "w-open"); !errors.Is(err, ErrNotMatched) {
		t.Fatalf("expected ErrNotMatched, got %v", err)
	}
}
