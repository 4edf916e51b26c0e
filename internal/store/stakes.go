package store

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ojaydev11/halobuzz-sub010/internal/engine"
	"github.com/ojaydev11/halobuzz-sub010/internal/games"
	"github.com/ojaydev11/halobuzz-sub010/internal/models"
	"github.com/ojaydev11/halobuzz-sub010/internal/wallet"
	"github.com/ojaydev11/halobuzz-sub010/pkg/logger"
)

// StakeLedger is the persistence boundary for stakes plus the engine's only
// path into the wallet. Placement is one transaction: debit, stake row and
// round total move together or not at all.
type StakeLedger struct {
	db     *gorm.DB
	rounds *RoundStore
	games  games.Provider
	wallet wallet.Wallet
	now    func() time.Time
}

func NewStakeLedger(db *gorm.DB, rounds *RoundStore, provider games.Provider, w wallet.Wallet) *StakeLedger {
	return &StakeLedger{
		db:     db,
		rounds: rounds,
		games:  provider,
		wallet: w,
		now:    time.Now,
	}
}

// WithClock overrides the ledger's clock. Test hook.
func (l *StakeLedger) WithClock(now func() time.Time) *StakeLedger {
	l.now = now
	return l
}

// PlaceStake puts a wager into the current round of a game. Preconditions
// are checked in order, each with its own failure: round open, amount within
// limits, selection valid for the category, no prior stake, enough balance.
// The re-read of round status inside the transaction is the cancellation
// checkpoint: a stake in flight when the window elapses is rejected, never
// silently accepted after settlement started.
func (l *StakeLedger) PlaceStake(userID int64, gameID string, amount float64, selectedOption *int, metadata *models.StakeMetadata) (*models.Stake, error) {
	game, err := l.games.Get(gameID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	bucketStart, bucketEnd := engine.ComputeWindow(now, game.RoundDurationSeconds)

	var stake models.Stake
	err = l.db.Transaction(func(tx *gorm.DB) error {
		round, err := l.rounds.GetOrCreate(tx, gameID, bucketStart, bucketEnd, game.OptionsCount)
		if err != nil {
			return err
		}

		if round.Status != models.RoundOpen || round.WindowElapsed(l.now().Unix()) {
			return ErrRoundClosed
		}

		if amount < game.MinStake || amount > game.MaxStake {
			return ErrInvalidAmount
		}

		if err := validateSelection(game, selectedOption, metadata); err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.Stake{}).
			Where("user_id = ? AND round_id = ?", userID, round.ID).
			Count(&existing).Error; err != nil {
			return logger.WrapError(err, "")
		}
		if existing > 0 {
			return ErrDuplicateStake
		}

		stake = models.Stake{
			ID:             uuid.NewString(),
			UserID:         userID,
			RoundID:        round.ID,
			Amount:         amount,
			SelectedOption: selectedOption,
			Metadata:       metadata,
			Result:         models.StakePending,
			PayoutStatus:   models.PayoutPending,
		}

		// Debit first; any later failure aborts the transaction and the
		// debit rolls back with it. Money removed with no stake recorded
		// is never acceptable.
		if err := l.wallet.Debit(tx, userID, amount, "stake:"+stake.ID); err != nil {
			return err
		}

		if err := tx.Create(&stake).Error; err != nil {
			if isDuplicateStakeErr(err) {
				// Concurrent duplicate that slipped past the count.
				return ErrDuplicateStake
			}
			return logger.WrapError(err, "")
		}

		return l.rounds.AddToTotal(tx, round.ID, amount)
	})
	if err != nil {
		return nil, err
	}

	return &stake, nil
}

func validateSelection(game *models.Game, selectedOption *int, metadata *models.StakeMetadata) error {
	switch game.Category {
	case models.CategoryCoinFlip, models.CategoryWheel:
		if selectedOption == nil || *selectedOption < 0 || *selectedOption >= game.OptionsCount {
			return ErrInvalidSelection
		}
	case models.CategoryLuckyNumber:
		if metadata == nil || metadata.Kind != models.MetaNumberGuess || metadata.NumberGuess == nil {
			return ErrInvalidSelection
		}
		if n := metadata.NumberGuess.Number; n < 0 || n >= int64(game.OptionsCount) {
			return ErrInvalidSelection
		}
	case models.CategoryLuckyWinner:
		// Nothing to select; the draw is over the staker set itself.
	}

	return nil
}

// StakesForRound returns the round's stakes in creation order. The order is
// part of the lucky_winner outcome space, so it must be stable.
func (l *StakeLedger) StakesForRound(tx *gorm.DB, roundID int64) ([]models.Stake, error) {
	if tx == nil {
		tx = l.db
	}

	var stakes []models.Stake
	err := tx.Where("round_id = ?", roundID).
		Order("created_at, id").
		Find(&stakes).Error
	if err != nil {
		return nil, logger.WrapError(err, "")
	}

	return stakes, nil
}

// MarkLost settles a losing stake. PayoutStatus stays pending: nothing is
// owed, the state is terminal. False means settlement already touched it.
func (l *StakeLedger) MarkLost(tx *gorm.DB, stakeID string) (bool, error) {
	return l.settlePending(tx, stakeID, map[string]interface{}{
		"result":     models.StakeLost,
		"win_amount": 0,
	})
}

// MarkWonPaid settles a winning stake together with its payout mark; it runs
// in the same transaction as the wallet credit so paid and credited can
// never diverge.
func (l *StakeLedger) MarkWonPaid(tx *gorm.DB, stakeID string, winAmount float64) (bool, error) {
	return l.settlePending(tx, stakeID, map[string]interface{}{
		"result":        models.StakeWon,
		"win_amount":    winAmount,
		"payout_status": models.PayoutPaid,
	})
}

// MarkWonFailed records a winning stake whose credit failed: the win stands,
// the payout is queued for reconciliation, never silently dropped.
func (l *StakeLedger) MarkWonFailed(tx *gorm.DB, stakeID string, winAmount float64) (bool, error) {
	return l.settlePending(tx, stakeID, map[string]interface{}{
		"result":        models.StakeWon,
		"win_amount":    winAmount,
		"payout_status": models.PayoutFailed,
	})
}

func (l *StakeLedger) settlePending(tx *gorm.DB, stakeID string, updates map[string]interface{}) (bool, error) {
	if tx == nil {
		tx = l.db
	}

	res := tx.Model(&models.Stake{}).
		Where("id = ? AND result = ?", stakeID, models.StakePending).
		Updates(updates)
	if res.Error != nil {
		return false, logger.WrapError(res.Error, "")
	}

	return res.RowsAffected == 1, nil
}

// ClaimFailedPayout flips failed to paid; the caller credits the wallet in
// the same transaction. The conditional update keeps two reconcilers from
// both claiming the stake, and the credit's ledger reference makes a replay
// a no-op anyway.
func (l *StakeLedger) ClaimFailedPayout(tx *gorm.DB, stakeID string) (bool, error) {
	if tx == nil {
		tx = l.db
	}

	res := tx.Model(&models.Stake{}).
		Where("id = ? AND payout_status = ?", stakeID, models.PayoutFailed).
		Update("payout_status", models.PayoutPaid)
	if res.Error != nil {
		return false, logger.WrapError(res.Error, "")
	}

	return res.RowsAffected == 1, nil
}

// FailedPayouts lists stakes awaiting payout reconciliation.
func (l *StakeLedger) FailedPayouts(tx *gorm.DB, limit int) ([]models.Stake, error) {
	if tx == nil {
		tx = l.db
	}

	var stakes []models.Stake
	err := tx.Where("payout_status = ?", models.PayoutFailed).
		Order("created_at").
		Limit(limit).
		Find(&stakes).Error
	if err != nil {
		return nil, logger.WrapError(err, "")
	}

	return stakes, nil
}

func isDuplicateStakeErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key")
}
