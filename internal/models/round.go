package models

import "time"

type RoundStatus string

const (
	RoundOpen     RoundStatus = "open"
	RoundClosed   RoundStatus = "closed"
	RoundSettling RoundStatus = "settling"
	RoundSettled  RoundStatus = "settled"
)

// Round is one staking window of a game. (GameID, BucketStart) is unique and
// is the idempotency key for lazy creation; status only ever moves forward
// through open -> closed -> settling -> settled.
type Round struct {
	ID             int64         `gorm:"primaryKey,autoIncrement" json:"id"`
	GameID         string        `gorm:"uniqueIndex:idx_rounds_game_bucket;not null" json:"game_id"`
	BucketStart    int64         `gorm:"uniqueIndex:idx_rounds_game_bucket;not null" json:"bucket_start"`
	BucketEnd      int64         `gorm:"not null" json:"bucket_end"`
	SeedCommitment string        `gorm:"not null" json:"seed_commitment,omitempty"`
	ServerSeed     string        `gorm:"not null" json:"-"`
	RevealedSeed   string        `json:"revealed_seed,omitempty"`
	Status         RoundStatus   `gorm:"not null;index" json:"status"`
	TotalStake     float64       `gorm:"not null;default:0" json:"total_stake"`
	OptionsCount   int           `gorm:"not null" json:"options_count"`
	Outcome        *RoundOutcome `gorm:"serializer:json" json:"outcome,omitempty"`
	CreatedAt      time.Time     `json:"-"`
	UpdatedAt      time.Time     `json:"-"`
}

func (r *Round) IsSettled() bool {
	return r.Status == RoundSettled
}

// WindowElapsed reports whether staking for this round is over at the given
// unix time.
func (r *Round) WindowElapsed(nowUnix int64) bool {
	return nowUnix >= r.BucketEnd
}
