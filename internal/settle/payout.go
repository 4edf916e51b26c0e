package settle

import (
	"math"

	"github.com/ojaydev11/halobuzz-sub010/internal/models"
)

// StakePayout is one stake's settlement instruction.
type StakePayout struct {
	StakeID   string
	UserID    int64
	Result    models.StakeResult
	WinAmount float64
}

// BuildPayoutPlan applies the frozen pari-mutuel formula: a winner gets the
// stake back plus a pro-rata share of the losing pool less the house edge,
// truncated to paise. Pure; settlement calls it exactly once per round and
// the truncation guarantees sum(winAmount) never exceeds totalStake.
func BuildPayoutPlan(game *models.Game, outcome *models.RoundOutcome, stakes []models.Stake) []StakePayout {
	var total, winningTotal float64
	for i := range stakes {
		total += stakes[i].Amount
		if isWinner(game.Category, outcome, &stakes[i], i) {
			winningTotal += stakes[i].Amount
		}
	}
	losingPool := total - winningTotal

	plan := make([]StakePayout, 0, len(stakes))
	for i := range stakes {
		payout := StakePayout{
			StakeID: stakes[i].ID,
			UserID:  stakes[i].UserID,
			Result:  models.StakeLost,
		}

		if isWinner(game.Category, outcome, &stakes[i], i) {
			payout.Result = models.StakeWon
			share := losingPool * (1 - game.HouseEdge) * stakes[i].Amount / winningTotal
			payout.WinAmount = stakes[i].Amount + floorPaise(share)
		}

		plan = append(plan, payout)
	}

	return plan
}

func isWinner(category models.GameCategory, outcome *models.RoundOutcome, stake *models.Stake, index int) bool {
	switch category {
	case models.CategoryCoinFlip, models.CategoryWheel:
		return stake.SelectedOption != nil && *stake.SelectedOption == outcome.WinningOption
	case models.CategoryLuckyNumber:
		return stake.Metadata != nil &&
			stake.Metadata.NumberGuess != nil &&
			stake.Metadata.NumberGuess.Number == int64(outcome.WinningOption)
	case models.CategoryLuckyWinner:
		return index == outcome.WinnerIndex
	}
	return false
}

func floorPaise(v float64) float64 {
	return math.Floor(v*100) / 100
}
