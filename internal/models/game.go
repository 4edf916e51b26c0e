package models

import "time"

type GameCategory string

const (
	CategoryCoinFlip    GameCategory = "coin_flip"
	CategoryWheel       GameCategory = "wheel"
	CategoryLuckyNumber GameCategory = "lucky_number"
	CategoryLuckyWinner GameCategory = "lucky_winner"
)

// Game is the read-only configuration of one mini game. Rows are seeded by
// the migrator and never mutated while rounds are running.
type Game struct {
	ID                   string       `gorm:"primaryKey" json:"id"`
	Category             GameCategory `gorm:"not null" json:"category"`
	RoundDurationSeconds int64        `gorm:"not null" json:"round_duration_seconds"`
	MinStake             float64      `gorm:"not null" json:"min_stake"`
	MaxStake             float64      `gorm:"not null" json:"max_stake"`
	OptionsCount         int          `gorm:"not null" json:"options_count"`
	HouseEdge            float64      `gorm:"not null" json:"house_edge"`
	CreatedAt            time.Time    `json:"-"`
}
