package wager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grade-stakes/grade_stakes/internal/ledger"
	"github.com/grade-stakes/grade_stakes/internal/logging"
)

func newTestService() (*Service, ledger.Ledger) {
	backend := ledger.NewInMemory()
	svc := NewService(NewMemoryStore(), backend, logging.Discard())
	return svc, backend
}

func validInput(creator string) CreateInput {
	return CreateInput{
		Creator:    creator,
		CourseCode: "COMP3506",
		Term:       "2026S1",
		Assessment: "Final Exam",
		Lower:      70,
		Upper:      100,
		StakeCents: 2_000,
	}
}

func TestCreateEscrowsStake(t *testing.T) {
	svc, backend := newTestService()
	ctx := context.Background()
	ledger.SeedBalance(backend, "alicia", 10_000)

	w, err := svc.Create(ctx, validInput("alicia"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.State != StateOpen {
		t.Fatalf("expected open, got %s", w.State)
	}
	if w.CreatorHoldID == "" {
		t.Fatalf("expected a creator hold")
	}

	acct, err := backend.Account(ctx, "alicia")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.Available != 8_000 || acct.Escrowed != 2_000 {
		t.Fatalf("expected 8000/2000, got %d/%d", acct.Available, acct.Escrowed)
	}
}

func TestCreateDirectedIsPending(t *testing.T) {
	svc, backend := newTestService()
	ctx := context.Background()
	ledger.SeedBalance(backend, "alicia", 10_000)

	input := validInput("alicia")
	input.CounterParty = "bruno"
	w, err := svc.Create(ctx, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.State != StatePending {
		t.Fatalf("expected pending, got %s", w.State)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, backend := newTestService()
	ctx := context.Background()
	ledger.SeedBalance(backend, "alicia", 100_000)

	cases := map[string]func(*CreateInput){
		"stake below minimum":     func(in *CreateInput) { in.StakeCents = 499 },
		"stake above maximum":     func(in *CreateInput) { in.StakeCents = 50_001 },
		"inverted interval":       func(in *CreateInput) { in.Lower = 90; in.Upper = 50 },
		"bound above 100":         func(in *CreateInput) { in.Upper = 101 },
		"missing course":          func(in *CreateInput) { in.CourseCode = "" },
		"self-directed":           func(in *CreateInput) { in.CounterParty = "alicia" },
		"expiration in the past":  func(in *CreateInput) { past := time.Now().Add(-time.Hour); in.ExpiresAt = &past },
	}
	for name, mutate := range cases {
		input := validInput("alicia")
		mutate(&input)
		if _, err := svc.Create(ctx, input); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	// Rejected creates must not leave holds behind.
	if got := ledger.TotalFunds(backend); got != 100_000 {
		t.Fatalf("funds changed on rejected creates: %d", got)
	}
}

func TestCreateInsufficientFunds(t *testing.T) {
	svc, backend := newTestService()
	ctx := context.Background()
	ledger.SeedBalance(backend, "alicia", 1_000)

	if _, err := svc.Create(ctx, validInput("alicia")); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestCancelRefundsCreator(t *testing.T) {
	svc, backend := newTestService()
	ctx := context.Background()
	ledger.SeedBalance(backend, "alicia", 10_000)

	w, err := svc.Create(ctx, validInput("alicia"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, w.ID, "alicia")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.State)
	}

	acct, _ := backend.Account(ctx, "alicia")
	if acct.Available != 10_000 || acct.Escrowed != 0 {
		t.Fatalf("expected full refund, got %d/%d", acct.Available, acct.Escrowed)
	}
}

func TestCancelByNonCreator(t *testing.T) {
	svc, backend := newTestService()
	ctx := context.Background()
	ledger.SeedBalance(backend, "alicia", 10_000)

	w, err := svc.Create(ctx, validInput("alicia"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Cancel(ctx, w.ID, "bruno"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
}

// failingReleaseLedger fails the first n Release calls, modelling a
// transient backend error between a terminal transition and its refund.
type failingReleaseLedger struct {
	ledger.Ledger
	mu       sync.Mutex
	failures int
}

func (f *failingReleaseLedger) Release(ctx context.Context, holdID, destination string) (int64, error) {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return 0, errors.New("connection reset by peer")
	}
	return f.Ledger.Release(ctx, holdID, destination)
}

func TestCancelRetryCompletesRefund(t *testing.T) {
	backend := ledger.NewInMemory()
	flaky := &failingReleaseLedger{Ledger: backend, failures: 1}
	svc := NewService(NewMemoryStore(), flaky, logging.Discard())
	ctx := context.Background()
	ledger.SeedBalance(backend, "alicia", 10_000)

	w, err := svc.Create(ctx, validInput("alicia"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Cancel(ctx, w.ID, "alicia"); err == nil {
		t.Fatalf("expected cancel to fail on the refund")
	}

	// The transition committed before the refund failed.
	got, err := svc.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateCancelled {
		t.Fatalf("expected cancelled after failed refund, got %s", got.State)
	}
	acct, _ := backend.Account(ctx, "alicia")
	if acct.Escrowed != 2_000 {
		t.Fatalf("expected stake still escrowed, got %d", acct.Escrowed)
	}

	// A retry must finish the refund instead of stranding the escrow.
	cancelled, err := svc.Cancel(ctx, w.ID, "alicia")
	if err != nil {
		t.Fatalf("retry cancel: %v", err)
	}
	if cancelled.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.State)
	}
	acct, _ = backend.Account(ctx, "alicia")
	if acct.Available != 10_000 || acct.Escrowed != 0 {
		t.Fatalf("expected full refund, got %d/%d", acct.Available, acct.Escrowed)
	}
}

func TestExpireSweepRetriesFailedRefund(t *testing.T) {
	backend := ledger.NewInMemory()
	flaky := &failingReleaseLedger{Ledger: backend, failures: 2}
	svc := NewService(NewMemoryStore(), flaky, logging.Discard())
	ctx := context.Background()
	ledger.SeedBalance(backend, "alicia", 10_000)

	soon := time.Now().Add(50 * time.Millisecond)
	input := validInput("alicia")
	input.ExpiresAt = &soon
	w, err := svc.Create(ctx, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// First sweep expires the wager but both refund attempts fail.
	if _, err := svc.ExpireSweep(ctx, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, err := svc.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateExpired {
		t.Fatalf("expected expired, got %s", got.State)
	}
	acct, _ := backend.Account(ctx, "alicia")
	if acct.Escrowed != 2_000 {
		t.Fatalf("expected stake still escrowed, got %d", acct.Escrowed)
	}

	// The next sweep picks the expired wager back up and finishes the refund.
	if _, err := svc.ExpireSweep(ctx, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	acct, _ = backend.Account(ctx, "alicia")
	if acct.Available != 10_000 || acct.Escrowed != 0 {
		t.Fatalf("expected full refund, got %d/%d", acct.Available, acct.Escrowed)
	}
}

func TestListByUserRejectsUnknownState(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.ListByUser(context.Background(), "alicia", "bogus"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExpireSweepRefunds(t *testing.T) {
	svc, backend := newTestService()
	ctx := context.Background()
	ledger.SeedBalance(backend, "alicia", 10_000)

	soon := time.Now().Add(50 * time.Millisecond)
	input := validInput("alicia")
	input.ExpiresAt = &soon
	w, err := svc.Create(ctx, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	expired, err := svc.ExpireSweep(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expiry, got %d", expired)
	}

	got, err := svc.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateExpired {
		t.Fatalf("expected expired, got %s", got.State)
	}

	acct, _ := backend.Account(ctx, "alicia")
	if acct.Available != 10_000 || acct.Escrowed != 0 {
		t.Fatalf("expected full refund, got %d/%d", acct.Available, acct.Escrowed)
	}
}
