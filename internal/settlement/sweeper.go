package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/grade-stakes/grade_stakes/internal/wager"
)

var (
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_outcomes_total",
		Help: "Terminal wager outcomes recorded by the settlement engine.",
	}, []string{"outcome"})

	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_sweeps_total",
		Help: "Completed settlement sweep passes.",
	})

	sweepPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_sweep_pending",
		Help: "Accepted wagers still awaiting a grade after the last sweep.",
	})
)

const sweepLockKey = "settlement:sweep:lock"

// Expirer transitions unmatched wagers past their expiration. Satisfied
// by wager.Service.
type Expirer interface {
	ExpireSweep(ctx context.Context, now time.Time) (int, error)
}

// Sweeper drives scheduled settlement: on every tick it expires stale
// unmatched wagers and attempts settlement of every accepted wager.
// Sweeps are idempotent, so overlapping or repeated runs are harmless;
// a redis lock merely keeps multiple instances from polling the oracle
// in parallel.
type Sweeper struct {
	engine  *Engine
	expirer Expirer
	cache   *redis.Client
	logger  *slog.Logger

	interval time.Duration
}

// NewSweeper builds the background sweep process. cache may be nil, in
// which case no cross-instance lock is taken.
func NewSweeper(engine *Engine, expirer Expirer, cache *redis.Client, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{engine: engine, expirer: expirer, cache: cache, logger: logger, interval: interval}
}

// Run loops until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.acquireLock(ctx) {
				continue
			}
			if err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("settlement sweep failed", slog.Any("error", err))
			}
		}
	}
}

// SweepOnce performs one expiry pass and one settlement pass. Failures on
// individual wagers are logged and do not stop the sweep for the rest.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	if s.expirer != nil {
		if _, err := s.expirer.ExpireSweep(ctx, time.Now()); err != nil {
			s.logger.Error("expiry sweep failed", slog.Any("error", err))
		}
	}

	accepted, err := s.engine.store.ListInState(ctx, wager.StateAccepted)
	if err != nil {
		return err
	}

	pending := 0
	for _, w := range accepted {
		settled, err := s.engine.Settle(ctx, w.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("settle attempt failed", slog.String("wager_id", w.ID), slog.Any("error", err))
			continue
		}
		if !settled.State.Terminal() {
			pending++
		}
	}

	sweepPending.Set(float64(pending))
	sweepsTotal.Inc()
	return nil
}

func (s *Sweeper) acquireLock(ctx context.Context) bool {
	if s.cache == nil {
		return true
	}
	ok, err := s.cache.SetNX(ctx, sweepLockKey, "1", s.interval).Result()
	if err != nil {
		// Fail open: a missed lock only risks duplicate oracle polls,
		// never duplicate payouts.
		return true
	}
	return ok
}
