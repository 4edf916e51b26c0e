package settle

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ojaydev11/halobuzz-sub010/internal/engine"
	"github.com/ojaydev11/halobuzz-sub010/internal/store"
	"github.com/ojaydev11/halobuzz-sub010/pkg/logger"
)

// Scheduler periodically settles rounds past their window and re-credits
// failed payouts. It coexists with on-demand settlement from result polls:
// both paths converge on Coordinator.Settle, which lets exactly one caller
// do the work. Transient failures are retried with a bounded exponential
// backoff, never with open-ended re-scheduling.
type Scheduler struct {
	coordinator *Coordinator
	rounds      *store.RoundStore
	interval    time.Duration
	maxRetries  uint64
	baseBackoff time.Duration
	sweepLimit  int
}

func NewScheduler(coordinator *Coordinator, rounds *store.RoundStore, interval time.Duration) *Scheduler {
	return &Scheduler{
		coordinator: coordinator,
		rounds:      rounds,
		interval:    interval,
		maxRetries:  3,
		baseBackoff: 500 * time.Millisecond,
		sweepLimit:  50,
	}
}

// Supervise runs the sweep loop and restarts it after a panic, the same way
// the platform supervises its other game loops.
func (s *Scheduler) Supervise(ctx context.Context) {
	for {
		logger.Info("Starting settlement sweep loop")

		done := make(chan bool)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Settlement sweep loop panicked: %v", r)
					done <- true
				}
			}()

			s.run(ctx)
			done <- true
		}()

		<-done

		select {
		case <-ctx.Done():
			logger.Info("Settlement sweep loop stopped")
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep settles every due round once, then retries failed payouts. Exported
// so the on-call path and tests can trigger a pass directly.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := time.Now()
	due, err := s.rounds.DueRounds(nil, now.Unix(), now.Add(-settlingGrace), s.sweepLimit)
	if err != nil {
		logger.Error("settlement sweep: listing due rounds: %v", err)
		return
	}

	for _, round := range due {
		if err := s.settleWithRetry(ctx, round.ID); err != nil {
			logger.Error("settlement sweep: round %d: %v", round.ID, err)
		}
	}

	if err := s.coordinator.RetryFailedPayouts(s.sweepLimit); err != nil {
		logger.Error("settlement sweep: payout reconciliation: %v", err)
	}
}

func (s *Scheduler) settleWithRetry(ctx context.Context, roundID int64) error {
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.baseBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := s.coordinator.Settle(roundID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrSettlementInProgress), errors.Is(err, ErrRoundNotDue):
			// Someone else owns it or the sweep raced the clock.
			return nil
		}

		var cfgErr *engine.ConfigError
		if errors.As(err, &cfgErr) {
			// Fatal configuration, retrying cannot help.
			return err
		}

		return retry.RetryableError(err)
	})
}
