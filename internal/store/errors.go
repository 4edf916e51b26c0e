package store

import "errors"

// Client-correctable failures surfaced synchronously from stake placement.
// Matched with errors.Is at the service edge; none of them are retried.
var (
	ErrRoundNotFound    = errors.New("round not found")
	ErrRoundClosed      = errors.New("round closed for staking")
	ErrInvalidAmount    = errors.New("stake amount outside game limits")
	ErrInvalidSelection = errors.New("invalid option selection for game")
	ErrDuplicateStake   = errors.New("user already staked in this round")
)
