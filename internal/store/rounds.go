package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ojaydev11/halobuzz-sub010/internal/engine"
	"github.com/ojaydev11/halobuzz-sub010/internal/models"
	"github.com/ojaydev11/halobuzz-sub010/pkg/logger"
)

// RoundStore is the persistence boundary for round rows. All correctness
// comes from the store: the (game_id, bucket_start) uniqueness constraint
// makes creation idempotent and the conditional status transitions stand in
// for a mutex, so any number of process instances can race safely.
type RoundStore struct {
	db *gorm.DB
}

func NewRoundStore(db *gorm.DB) *RoundStore {
	return &RoundStore{db: db}
}

// GetOrCreate returns the round keyed by (gameID, bucketStart), creating it
// with a fresh seed commitment when absent. Two callers racing on creation
// both end up with the same row: the loser's insert hits the unique index and
// falls back to a re-read.
func (s *RoundStore) GetOrCreate(tx *gorm.DB, gameID string, bucketStart, bucketEnd int64, optionsCount int) (*models.Round, error) {
	if tx == nil {
		tx = s.db
	}

	var round models.Round
	err := tx.Where("game_id = ? AND bucket_start = ?", gameID, bucketStart).First(&round).Error
	if err == nil {
		return &round, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, logger.WrapError(err, "")
	}

	serverSeed, commitment, err := engine.NewServerSeed()
	if err != nil {
		return nil, logger.WrapError(err, "generating round seed")
	}

	round = models.Round{
		GameID:         gameID,
		BucketStart:    bucketStart,
		BucketEnd:      bucketEnd,
		SeedCommitment: commitment,
		ServerSeed:     serverSeed,
		Status:         models.RoundOpen,
		OptionsCount:   optionsCount,
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&round)
	if res.Error != nil {
		return nil, logger.WrapError(res.Error, "")
	}
	if res.RowsAffected == 0 {
		// Lost the creation race; the winner's row is the round.
		if err := tx.Where("game_id = ? AND bucket_start = ?", gameID, bucketStart).First(&round).Error; err != nil {
			return nil, logger.WrapError(err, "")
		}
	}

	return &round, nil
}

func (s *RoundStore) GetByID(tx *gorm.DB, roundID int64) (*models.Round, error) {
	if tx == nil {
		tx = s.db
	}

	var round models.Round
	err := tx.First(&round, roundID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, logger.WrapError(err, "")
	}

	return &round, nil
}

// TransitionStatus flips the round's status only if it currently equals
// from. A false return is not an error: it means another caller already
// performed the transition and this caller should back off.
func (s *RoundStore) TransitionStatus(tx *gorm.DB, roundID int64, from, to models.RoundStatus) (bool, error) {
	if tx == nil {
		tx = s.db
	}

	res := tx.Model(&models.Round{}).
		Where("id = ? AND status = ?", roundID, from).
		Update("status", to)
	if res.Error != nil {
		return false, logger.WrapError(res.Error, "")
	}

	return res.RowsAffected == 1, nil
}

// TakeOverStuckSettling claims a round a crashed settler left in settling.
// The timestamp guard keeps two sweepers from claiming it at once; touching
// updated_at restarts the grace period for the new owner.
func (s *RoundStore) TakeOverStuckSettling(tx *gorm.DB, roundID int64, stuckSince time.Time) (bool, error) {
	if tx == nil {
		tx = s.db
	}

	res := tx.Model(&models.Round{}).
		Where("id = ? AND status = ? AND updated_at < ?", roundID, models.RoundSettling, stuckSince).
		Update("updated_at", time.Now())
	if res.Error != nil {
		return false, logger.WrapError(res.Error, "")
	}

	return res.RowsAffected == 1, nil
}

// AddToTotal increments the round's total stake with a SQL expression; every
// concurrent staker goes through this, never a read-modify-write.
func (s *RoundStore) AddToTotal(tx *gorm.DB, roundID int64, amount float64) error {
	if tx == nil {
		tx = s.db
	}

	err := tx.Model(&models.Round{}).
		Where("id = ?", roundID).
		Update("total_stake", gorm.Expr("total_stake + ?", amount)).Error
	if err != nil {
		return logger.WrapError(err, "")
	}

	return nil
}

// SetSettled stores the outcome, reveals the seed and flips settling to
// settled in one conditional statement, so a settled round can never lose or
// change its stored outcome.
func (s *RoundStore) SetSettled(tx *gorm.DB, roundID int64, outcome *models.RoundOutcome, revealedSeed string) (bool, error) {
	if tx == nil {
		tx = s.db
	}

	res := tx.Model(&models.Round{}).
		Where("id = ? AND status = ?", roundID, models.RoundSettling).
		Updates(models.Round{
			Status:       models.RoundSettled,
			Outcome:      outcome,
			RevealedSeed: revealedSeed,
		})
	if res.Error != nil {
		return false, logger.WrapError(res.Error, "")
	}

	return res.RowsAffected == 1, nil
}

// DueRounds lists rounds whose window has elapsed and that still need
// settlement work: open or closed rounds, plus settling rounds stuck past
// the takeover grace.
func (s *RoundStore) DueRounds(tx *gorm.DB, nowUnix int64, stuckSince time.Time, limit int) ([]models.Round, error) {
	if tx == nil {
		tx = s.db
	}

	var rounds []models.Round
	err := tx.
		Where("bucket_end <= ? AND (status IN ? OR (status = ? AND updated_at < ?))",
			nowUnix,
			[]models.RoundStatus{models.RoundOpen, models.RoundClosed},
			models.RoundSettling, stuckSince).
		Order("bucket_end").
		Limit(limit).
		Find(&rounds).Error
	if err != nil {
		return nil, logger.WrapError(err, "")
	}

	return rounds, nil
}

// History returns the latest settled rounds for a game. Rounds are audit
// records and are never deleted, only superseded by the next bucket.
func (s *RoundStore) History(tx *gorm.DB, gameID string, limit int) ([]models.Round, error) {
	if tx == nil {
		tx = s.db
	}

	var history []models.Round
	err := tx.Where("game_id = ? AND status = ?", gameID, models.RoundSettled).
		Order("bucket_start desc").Limit(limit).Find(&history).Error
	if err != nil {
		return nil, logger.WrapError(err, "")
	}

	return history, nil
}
