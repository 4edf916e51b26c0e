package models

import "time"

type StakeResult string

const (
	StakePending StakeResult = "pending"
	StakeWon     StakeResult = "won"
	StakeLost    StakeResult = "lost"
)

type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
	PayoutFailed  PayoutStatus = "failed"
)

// Stake is one user's wager in one round. (UserID, RoundID) is unique; the
// row is written once at placement and mutated exactly once by settlement.
// Losing stakes keep PayoutStatus pending: nothing is owed, the status is
// terminal.
type Stake struct {
	ID             string         `gorm:"primaryKey" json:"id"`
	UserID         int64          `gorm:"uniqueIndex:idx_stakes_user_round;not null" json:"user_id"`
	RoundID        int64          `gorm:"uniqueIndex:idx_stakes_user_round;not null;index" json:"round_id"`
	Amount         float64        `gorm:"not null" json:"amount"`
	SelectedOption *int           `json:"selected_option,omitempty"`
	Metadata       *StakeMetadata `gorm:"serializer:json" json:"metadata,omitempty"`
	Result         StakeResult    `gorm:"not null;default:pending" json:"result"`
	WinAmount      float64        `gorm:"not null;default:0" json:"win_amount"`
	PayoutStatus   PayoutStatus   `gorm:"not null;default:pending" json:"payout_status"`
	CreatedAt      time.Time      `json:"created_at"`
}
