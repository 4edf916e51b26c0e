package settle

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ojaydev11/halobuzz-sub010/internal/engine"
	"github.com/ojaydev11/halobuzz-sub010/internal/games"
	"github.com/ojaydev11/halobuzz-sub010/internal/models"
	"github.com/ojaydev11/halobuzz-sub010/internal/store"
	"github.com/ojaydev11/halobuzz-sub010/internal/wallet"
	"github.com/ojaydev11/halobuzz-sub010/pkg/logger"
)

var (
	// ErrRoundNotDue means the round's window has not elapsed yet.
	ErrRoundNotDue = errors.New("round window has not elapsed")
	// ErrSettlementInProgress means another caller holds the settling
	// guard; the round will be settled shortly, poll again.
	ErrSettlementInProgress = errors.New("settlement already in progress")
)

// A settler that dies mid-flight leaves the round in settling; after this
// grace any sweeper may take the round over. Safe because every per-stake
// mutation and every credit is individually idempotent.
const settlingGrace = 2 * time.Minute

// SettledRound is the idempotent settlement answer: the round with its
// stored outcome plus every stake's final result.
type SettledRound struct {
	Round  models.Round   `json:"round"`
	Stakes []models.Stake `json:"stakes"`
}

// Coordinator drives a round from closed to settled exactly once. Many
// callers may invoke Settle concurrently (user result polls, the scheduler
// sweep, several process instances); the conditional status transition picks
// a single winner and everyone else reads the stored result.
type Coordinator struct {
	db     *gorm.DB
	rounds *store.RoundStore
	stakes *store.StakeLedger
	games  games.Provider
	wallet wallet.Wallet
	now    func() time.Time
}

func NewCoordinator(db *gorm.DB, rounds *store.RoundStore, stakes *store.StakeLedger, provider games.Provider, w wallet.Wallet) *Coordinator {
	return &Coordinator{
		db:     db,
		rounds: rounds,
		stakes: stakes,
		games:  provider,
		wallet: w,
		now:    time.Now,
	}
}

// WithClock overrides the coordinator's clock. Test hook.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Settle resolves and pays out a round. Idempotent: a settled round answers
// from its stored outcome without recomputation or repayment.
func (c *Coordinator) Settle(roundID int64) (*SettledRound, error) {
	round, err := c.rounds.GetByID(nil, roundID)
	if err != nil {
		return nil, err
	}

	if round.IsSettled() {
		return c.loadSettled(round)
	}

	if round.Status == models.RoundOpen {
		if !round.WindowElapsed(c.now().Unix()) {
			return nil, ErrRoundNotDue
		}
		// Whether we or a racer close it, the round ends up closed.
		if _, err := c.rounds.TransitionStatus(nil, roundID, models.RoundOpen, models.RoundClosed); err != nil {
			return nil, err
		}
		if round, err = c.rounds.GetByID(nil, roundID); err != nil {
			return nil, err
		}
	}

	switch round.Status {
	case models.RoundSettled:
		return c.loadSettled(round)

	case models.RoundClosed:
		won, err := c.rounds.TransitionStatus(nil, roundID, models.RoundClosed, models.RoundSettling)
		if err != nil {
			return nil, err
		}
		if !won {
			if round, err = c.rounds.GetByID(nil, roundID); err != nil {
				return nil, err
			}
			if round.IsSettled() {
				return c.loadSettled(round)
			}
			return nil, ErrSettlementInProgress
		}

	case models.RoundSettling:
		claimed, err := c.rounds.TakeOverStuckSettling(nil, roundID, c.now().Add(-settlingGrace))
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, ErrSettlementInProgress
		}

	default:
		return nil, logger.WrapError(fmt.Errorf("round %d in unexpected status %q", roundID, round.Status), "")
	}

	return c.executeSettlement(round)
}

// executeSettlement runs with the settling guard held. Payouts are applied
// stake by stake so one failing credit never blocks the siblings, and every
// mutation is guarded on result=pending so a resumed settlement after a
// crash pays nobody twice.
func (c *Coordinator) executeSettlement(round *models.Round) (*SettledRound, error) {
	game, err := c.games.Get(round.GameID)
	if err != nil {
		return nil, c.abortSettlement(round.ID, err)
	}

	stakes, err := c.stakes.StakesForRound(nil, round.ID)
	if err != nil {
		return nil, c.abortSettlement(round.ID, err)
	}

	outcome, err := c.computeOutcome(round, game, stakes)
	if err != nil {
		// Malformed seed or config: leave the round closed for retry,
		// never half-settled.
		return nil, c.abortSettlement(round.ID, err)
	}

	plan := BuildPayoutPlan(game, outcome, stakes)
	var totalPaid float64
	for _, payout := range plan {
		paid, err := c.applyPayout(payout)
		if err != nil {
			logger.Error("round %d stake %s payout failed, queued for reconciliation: %v",
				round.ID, payout.StakeID, err)
		}
		totalPaid += paid
	}

	if margin := round.TotalStake - totalPaid; margin < 0 {
		logger.Error("round %d paid out more than staked: margin %.2f", round.ID, margin)
	}

	// Flip to settled and reveal the seed; recomputation is deterministic,
	// so even a takeover racing past us stores the identical outcome.
	if _, err := c.rounds.SetSettled(nil, round.ID, outcome, round.ServerSeed); err != nil {
		return nil, err
	}

	settled, err := c.rounds.GetByID(nil, round.ID)
	if err != nil {
		return nil, err
	}
	return c.loadSettled(settled)
}

// applyPayout settles one stake and returns the amount credited. The won+paid
// mark and the wallet credit commit in one transaction; when the credit
// fails the stake is recorded won with payoutStatus=failed instead.
func (c *Coordinator) applyPayout(payout StakePayout) (float64, error) {
	if payout.Result == models.StakeLost {
		if _, err := c.stakes.MarkLost(nil, payout.StakeID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	var applied bool
	err := c.db.Transaction(func(tx *gorm.DB) error {
		ok, err := c.stakes.MarkWonPaid(tx, payout.StakeID, payout.WinAmount)
		if err != nil {
			return err
		}
		if !ok {
			// Already settled by an earlier attempt.
			return nil
		}
		applied = true
		return c.wallet.Credit(tx, payout.UserID, payout.WinAmount, "payout:"+payout.StakeID)
	})
	if err != nil {
		if _, markErr := c.stakes.MarkWonFailed(nil, payout.StakeID, payout.WinAmount); markErr != nil {
			logger.Error("failed to record failed payout for stake %s: %v", payout.StakeID, markErr)
		}
		return 0, err
	}

	if applied {
		return payout.WinAmount, nil
	}
	return 0, nil
}

func (c *Coordinator) abortSettlement(roundID int64, cause error) error {
	if _, err := c.rounds.TransitionStatus(nil, roundID, models.RoundSettling, models.RoundClosed); err != nil {
		logger.Error("failed to release settling guard for round %d: %v", roundID, err)
	}
	return cause
}

func (c *Coordinator) computeOutcome(round *models.Round, game *models.Game, stakes []models.Stake) (*models.RoundOutcome, error) {
	params := engine.ResolveParams{
		OptionsCount: game.OptionsCount,
		HouseEdge:    game.HouseEdge,
	}

	switch game.Category {
	case models.CategoryLuckyWinner:
		if len(stakes) == 0 {
			// Empty round: nothing to draw, nobody to pay.
			return &models.RoundOutcome{
				Category:      game.Category,
				WinningOption: -1,
				WinnerIndex:   -1,
			}, nil
		}
		for _, stake := range stakes {
			params.StakeAmounts = append(params.StakeAmounts, stake.Amount)
		}
	default:
		params.OptionTotals = make([]float64, game.OptionsCount)
		for _, stake := range stakes {
			if option, ok := stakeOption(game.Category, &stake); ok && option >= 0 && option < game.OptionsCount {
				params.OptionTotals[option] += stake.Amount
			}
		}
	}

	outcome, err := engine.Resolve(round.SeedCommitment, game.Category, params)
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

func stakeOption(category models.GameCategory, stake *models.Stake) (int, bool) {
	switch category {
	case models.CategoryCoinFlip, models.CategoryWheel:
		if stake.SelectedOption != nil {
			return *stake.SelectedOption, true
		}
	case models.CategoryLuckyNumber:
		if stake.Metadata != nil && stake.Metadata.NumberGuess != nil {
			return int(stake.Metadata.NumberGuess.Number), true
		}
	}
	return 0, false
}

func (c *Coordinator) loadSettled(round *models.Round) (*SettledRound, error) {
	stakes, err := c.stakes.StakesForRound(nil, round.ID)
	if err != nil {
		return nil, err
	}

	return &SettledRound{Round: *round, Stakes: stakes}, nil
}

// RetryFailedPayouts re-credits stakes whose payout failed during
// settlement. The claim and the credit share a transaction, and the ledger
// reference makes a double credit impossible even across racing reconcilers.
func (c *Coordinator) RetryFailedPayouts(limit int) error {
	failed, err := c.stakes.FailedPayouts(nil, limit)
	if err != nil {
		return err
	}

	for _, stake := range failed {
		stake := stake
		err := c.db.Transaction(func(tx *gorm.DB) error {
			claimed, err := c.stakes.ClaimFailedPayout(tx, stake.ID)
			if err != nil || !claimed {
				return err
			}
			return c.wallet.Credit(tx, stake.UserID, stake.WinAmount, "payout:"+stake.ID)
		})
		if err != nil {
			logger.Error("payout retry for stake %s failed: %v", stake.ID, err)
		}
	}

	return nil
}

// VerifyReport lets anyone recompute a settled round's outcome from the
// revealed seed material.
type VerifyReport struct {
	RoundID        int64                `json:"round_id"`
	SeedCommitment string               `json:"seed_commitment"`
	RevealedSeed   string               `json:"revealed_seed"`
	SeedValid      bool                 `json:"seed_valid"`
	StoredOutcome  *models.RoundOutcome `json:"stored_outcome"`
	Recomputed     *models.RoundOutcome `json:"recomputed_outcome"`
}

// Verify recomputes a settled round's outcome and checks the revealed seed
// against its commitment.
func (c *Coordinator) Verify(roundID int64) (*VerifyReport, error) {
	round, err := c.rounds.GetByID(nil, roundID)
	if err != nil {
		return nil, err
	}
	if !round.IsSettled() {
		return nil, ErrRoundNotDue
	}

	game, err := c.games.Get(round.GameID)
	if err != nil {
		return nil, err
	}

	stakes, err := c.stakes.StakesForRound(nil, round.ID)
	if err != nil {
		return nil, err
	}

	recomputed, err := c.computeOutcome(round, game, stakes)
	if err != nil {
		return nil, err
	}

	return &VerifyReport{
		RoundID:        round.ID,
		SeedCommitment: round.SeedCommitment,
		RevealedSeed:   round.RevealedSeed,
		SeedValid:      engine.VerifySeed(round.RevealedSeed, round.SeedCommitment),
		StoredOutcome:  round.Outcome,
		Recomputed:     recomputed,
	}, nil
}
