package models

// Stake metadata is a tagged union: each game category that needs extra
// per-stake input gets its own typed payload, discriminated by Kind. An
// unknown or missing payload for a category that requires one is rejected at
// placement time.

type MetaKind string

const (
	MetaNumberGuess MetaKind = "number_guess"
	MetaClickCount  MetaKind = "click_count"
)

// NumberGuessMeta carries the number a lucky_number staker guessed.
type NumberGuessMeta struct {
	Number int64 `json:"number"`
}

// ClickCountMeta records the click total a staker reported with the wager.
// It is audit data only and never feeds outcome resolution.
type ClickCountMeta struct {
	Clicks int64 `json:"clicks"`
}

type StakeMetadata struct {
	Kind        MetaKind         `json:"kind"`
	NumberGuess *NumberGuessMeta `json:"number_guess,omitempty"`
	ClickCount  *ClickCountMeta  `json:"click_count,omitempty"`
}

// RoundOutcome is the settled result of a round, stored on the row so later
// settlement calls can answer idempotently without recomputation.
type RoundOutcome struct {
	Category GameCategory `json:"category"`
	// Raw is the integer derived from the seed commitment, kept so the
	// draw can be re-verified from the revealed seed.
	Raw uint64 `json:"raw"`
	// WinningOption is the drawn option for option games, -1 otherwise.
	WinningOption int `json:"winning_option"`
	// WinnerIndex is the drawn ordinal (stakes in creation order) for
	// lucky_winner, -1 otherwise and for rounds with no stakers.
	WinnerIndex int `json:"winner_index"`
	// Multiplier is the pool multiplier applied to winning stakes, 0 when
	// the round produced no winner.
	Multiplier float64 `json:"multiplier"`
}
