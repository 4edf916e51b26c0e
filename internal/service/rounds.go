package service

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ojaydev11/halobuzz-sub010/internal/engine"
	"github.com/ojaydev11/halobuzz-sub010/internal/games"
	"github.com/ojaydev11/halobuzz-sub010/internal/models"
	"github.com/ojaydev11/halobuzz-sub010/internal/settle"
	"github.com/ojaydev11/halobuzz-sub010/internal/store"
	"github.com/ojaydev11/halobuzz-sub010/internal/wallet"
	"github.com/ojaydev11/halobuzz-sub010/pkg/logger"
	"github.com/ojaydev11/halobuzz-sub010/pkg/redis"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

const currentRoundCacheTTL = 2 * time.Second

// RoundsService is the thin adapter between the transport and the engine.
// Caller identity comes from the platform gateway via the X-User-ID header;
// this layer carries no auth of its own.
type RoundsService struct {
	games       games.Provider
	rounds      *store.RoundStore
	stakes      *store.StakeLedger
	coordinator *settle.Coordinator
	cache       *redis.RedisService
	now         func() time.Time
}

// NewRoundsService wires the handlers. cache may be nil; lookups then always
// hit the store.
func NewRoundsService(provider games.Provider, rounds *store.RoundStore, stakes *store.StakeLedger, coordinator *settle.Coordinator, cache *redis.RedisService) *RoundsService {
	return &RoundsService{
		games:       provider,
		rounds:      rounds,
		stakes:      stakes,
		coordinator: coordinator,
		cache:       cache,
		now:         time.Now,
	}
}

// currentRoundView is what an open round exposes. The seed commitment stays
// hidden while staking is possible so the outcome cannot be precomputed.
type currentRoundView struct {
	RoundID       int64              `json:"round_id"`
	GameID        string             `json:"game_id"`
	BucketStart   int64              `json:"bucket_start"`
	BucketEnd     int64              `json:"bucket_end"`
	TimeRemaining int64              `json:"time_remaining"`
	TotalStake    float64            `json:"total_stake"`
	Status        models.RoundStatus `json:"status"`
	OptionsCount  int                `json:"options_count"`
}

func (s *RoundsService) GetCurrentRound(c *gin.Context) {
	gameID, ok := c.GetQuery("game_id")
	if !ok {
		c.JSON(400, gin.H{"error": "query parameter game_id invalid"})
		return
	}

	game, err := s.games.Get(gameID)
	if err != nil {
		c.JSON(400, gin.H{"error": "no game with this id"})
		return
	}

	now := s.now()
	cacheKey := "rounds:current:" + gameID
	if s.cache != nil {
		var view currentRoundView
		if err := s.cache.GetJSON(c.Request.Context(), cacheKey, &view); err == nil {
			view.TimeRemaining = view.BucketEnd - now.Unix()
			c.JSON(200, view)
			return
		} else if !redis.IsNil(err) {
			logger.Warn("current round cache read: %v", err)
		}
	}

	bucketStart, bucketEnd := engine.ComputeWindow(now, game.RoundDurationSeconds)
	round, err := s.rounds.GetOrCreate(nil, gameID, bucketStart, bucketEnd, game.OptionsCount)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	view := currentRoundView{
		RoundID:       round.ID,
		GameID:        round.GameID,
		BucketStart:   round.BucketStart,
		BucketEnd:     round.BucketEnd,
		TimeRemaining: round.BucketEnd - now.Unix(),
		TotalStake:    round.TotalStake,
		Status:        round.Status,
		OptionsCount:  round.OptionsCount,
	}

	if s.cache != nil {
		ttl := currentRoundCacheTTL
		if remaining := time.Until(time.Unix(round.BucketEnd, 0)); remaining > 0 && remaining < ttl {
			ttl = remaining
		}
		if ttl > 0 {
			if err := s.cache.SetJSON(c.Request.Context(), cacheKey, view, ttl); err != nil {
				logger.Warn("current round cache write: %v", err)
			}
		}
	}

	c.JSON(200, view)
}

type placeStakeInput struct {
	GameID         string  `json:"game_id" validate:"required"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	SelectedOption *int    `json:"selected_option" validate:"omitempty,min=0"`
	GuessedNumber  *int64  `json:"guessed_number" validate:"omitempty,min=0"`
	Clicks         *int64  `json:"clicks" validate:"omitempty,min=0"`
}

func (s *RoundsService) PlaceStake(c *gin.Context) {
	userID, err := userIDFromHeader(c)
	if err != nil {
		c.Status(401)
		return
	}

	var input placeStakeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Status(400)
		return
	}

	if err := validate.Struct(input); err != nil {
		c.Status(400)
		return
	}

	var metadata *models.StakeMetadata
	if input.GuessedNumber != nil {
		metadata = &models.StakeMetadata{
			Kind:        models.MetaNumberGuess,
			NumberGuess: &models.NumberGuessMeta{Number: *input.GuessedNumber},
		}
	} else if input.Clicks != nil {
		metadata = &models.StakeMetadata{
			Kind:       models.MetaClickCount,
			ClickCount: &models.ClickCountMeta{Clicks: *input.Clicks},
		}
	}

	stake, err := s.stakes.PlaceStake(userID, input.GameID, input.Amount, input.SelectedOption, metadata)
	if err != nil {
		s.respondStakeError(c, err)
		return
	}

	if s.cache != nil {
		// The cached view's total is stale now.
		if err := s.cache.DeleteKey(c.Request.Context(), "rounds:current:"+input.GameID); err != nil {
			logger.Warn("current round cache invalidation: %v", err)
		}
	}

	c.JSON(200, stake)
}

func (s *RoundsService) respondStakeError(c *gin.Context, err error) {
	var cfgErr *engine.ConfigError
	switch {
	case errors.Is(err, store.ErrRoundClosed):
		c.JSON(409, gin.H{"error": "round closed, wait for the next one"})
	case errors.Is(err, store.ErrDuplicateStake):
		c.JSON(409, gin.H{"error": "already staked in this round"})
	case errors.Is(err, store.ErrInvalidAmount), errors.Is(err, store.ErrInvalidSelection):
		c.JSON(400, gin.H{"error": err.Error()})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(402, gin.H{"error": err.Error()})
	case errors.As(err, &cfgErr):
		c.JSON(400, gin.H{"error": "no game with this id"})
	default:
		logger.Error("%v", err)
		c.Status(500)
	}
}

// GetResult returns a round's settled result, settling it first when due.
// A result poll and the scheduler sweep racing here is the normal case; the
// loser of the race reads the stored outcome.
func (s *RoundsService) GetResult(c *gin.Context) {
	roundID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "path parameter id invalid"})
		return
	}

	settled, err := s.coordinator.Settle(roundID)
	switch {
	case err == nil:
		c.JSON(200, settled)
	case errors.Is(err, store.ErrRoundNotFound):
		c.Status(404)
	case errors.Is(err, settle.ErrRoundNotDue):
		c.JSON(400, gin.H{"error": "round is still open"})
	case errors.Is(err, settle.ErrSettlementInProgress):
		c.JSON(202, gin.H{"status": "settling"})
	default:
		logger.Error("%v", err)
		c.Status(500)
	}
}

func (s *RoundsService) GetHistory(c *gin.Context) {
	gameID, ok := c.GetQuery("game_id")
	if !ok {
		c.JSON(400, gin.H{"error": "query parameter game_id invalid"})
		return
	}

	history, err := s.rounds.History(nil, gameID, 20)
	if err != nil {
		logger.Error("%v", err)
		c.Status(500)
		return
	}

	c.JSON(200, history)
}

// Verify exposes the provable-fairness reveal for a settled round.
func (s *RoundsService) Verify(c *gin.Context) {
	roundID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "path parameter id invalid"})
		return
	}

	report, err := s.coordinator.Verify(roundID)
	switch {
	case err == nil:
		c.JSON(200, report)
	case errors.Is(err, store.ErrRoundNotFound):
		c.Status(404)
	case errors.Is(err, settle.ErrRoundNotDue):
		c.JSON(400, gin.H{"error": "round is not settled yet"})
	default:
		logger.Error("%v", err)
		c.Status(500)
	}
}

// The platform gateway authenticates callers and forwards the user id.
func userIDFromHeader(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
}
