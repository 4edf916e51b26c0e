package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ojaydev11/halobuzz-sub010/internal/models"
)

// ConfigError marks fatal misconfiguration: a malformed seed commitment, an
// unknown category, inconsistent game parameters. It is never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "engine config error: " + e.Reason
}

// ResolveParams carries the game parameters and round aggregates a category
// needs to map the derived integer into its outcome space. Identical params
// and commitment always produce an identical outcome.
type ResolveParams struct {
	OptionsCount int
	HouseEdge    float64
	// OptionTotals is the staked amount per option, indexed by option,
	// for coin_flip / wheel / lucky_number.
	OptionTotals []float64
	// StakeAmounts lists every stake amount in creation order, for
	// lucky_winner.
	StakeAmounts []float64
}

// The wheel layout is fixed: 7 red and 7 black sectors plus one green, the
// same 15-sector ring the platform has always spun. Changing these weights
// after rounds have been committed breaks auditability.
var wheelCumulative = []float64{7.0 / 15.0, 14.0 / 15.0, 1.0}

const (
	WheelRed   = 0
	WheelBlack = 1
	WheelGreen = 2
)

// Resolve derives the single outcome for a round from its seed commitment.
// Pure: no clock, no I/O, no randomness beyond the commitment. The byte
// derivation is HMAC-SHA256 keyed by the commitment over
// "<category>:<discriminator>"; the mapping per category is frozen.
func Resolve(seedCommitment string, category models.GameCategory, params ResolveParams) (models.RoundOutcome, error) {
	if strings.TrimSpace(seedCommitment) == "" {
		return models.RoundOutcome{}, &ConfigError{Reason: "missing seed commitment"}
	}

	outcome := models.RoundOutcome{
		Category:      category,
		WinningOption: -1,
		WinnerIndex:   -1,
	}

	switch category {
	case models.CategoryCoinFlip:
		if params.OptionsCount != 2 {
			return outcome, &ConfigError{Reason: "coin_flip requires exactly 2 options"}
		}
		outcome.Raw = deriveUint(seedCommitment, category, "side")
		outcome.WinningOption = int(outcome.Raw % 2)

	case models.CategoryWheel:
		if params.OptionsCount != len(wheelCumulative) {
			return outcome, &ConfigError{Reason: "wheel requires exactly 3 options"}
		}
		outcome.Raw = deriveUint(seedCommitment, category, "sector")
		f := deriveFloat(outcome.Raw)
		outcome.WinningOption = len(wheelCumulative) - 1
		for i, cum := range wheelCumulative {
			if f < cum {
				outcome.WinningOption = i
				break
			}
		}

	case models.CategoryLuckyNumber:
		if params.OptionsCount < 2 {
			return outcome, &ConfigError{Reason: "lucky_number requires at least 2 options"}
		}
		outcome.Raw = deriveUint(seedCommitment, category, "number")
		outcome.WinningOption = int(outcome.Raw % uint64(params.OptionsCount))

	case models.CategoryLuckyWinner:
		if len(params.StakeAmounts) == 0 {
			return outcome, &ConfigError{Reason: "lucky_winner draw invoked with no stakers"}
		}
		outcome.Raw = deriveUint(seedCommitment, category, "winner")
		outcome.WinnerIndex = int(outcome.Raw % uint64(len(params.StakeAmounts)))

	default:
		return outcome, &ConfigError{Reason: fmt.Sprintf("unknown game category %q", category)}
	}

	outcome.Multiplier = poolMultiplier(category, outcome, params)
	return outcome, nil
}

// poolMultiplier is the pari-mutuel odds recorded on the outcome: winners get
// their stake back plus a pro-rata share of the losing pool less the house
// edge. Zero when the drawn option attracted no stake.
func poolMultiplier(category models.GameCategory, outcome models.RoundOutcome, params ResolveParams) float64 {
	var total, winning float64

	switch category {
	case models.CategoryLuckyWinner:
		for _, amount := range params.StakeAmounts {
			total += amount
		}
		winning = params.StakeAmounts[outcome.WinnerIndex]
	default:
		for _, amount := range params.OptionTotals {
			total += amount
		}
		if outcome.WinningOption >= 0 && outcome.WinningOption < len(params.OptionTotals) {
			winning = params.OptionTotals[outcome.WinningOption]
		}
	}

	if winning <= 0 {
		return 0
	}
	return 1 + (total-winning)*(1-params.HouseEdge)/winning
}

func deriveUint(commitment string, category models.GameCategory, discriminator string) uint64 {
	mac := hmac.New(sha256.New, []byte(commitment))
	fmt.Fprintf(mac, "%s:%s", category, discriminator)
	sum := mac.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// deriveFloat maps the top 4 bytes of the derived integer into [0, 1).
func deriveFloat(raw uint64) float64 {
	return float64(raw>>32) / float64(1<<32)
}
