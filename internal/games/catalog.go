package games

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/ojaydev11/halobuzz-sub010/internal/engine"
	"github.com/ojaydev11/halobuzz-sub010/internal/models"
	"github.com/ojaydev11/halobuzz-sub010/pkg/logger"
)

// Provider serves read-only game configuration to the engine.
type Provider interface {
	Get(gameID string) (*models.Game, error)
	All() []models.Game
}

// Catalog loads the seeded game table once at startup and serves it from
// memory. Game config is immutable for the lifetime of a round, so a plain
// map with no invalidation is correct here; mutable state never lives in it.
type Catalog struct {
	games map[string]models.Game
	order []string
}

func LoadCatalog(db *gorm.DB) (*Catalog, error) {
	var rows []models.Game
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, logger.WrapError(err, "")
	}

	catalog := &Catalog{games: make(map[string]models.Game, len(rows))}
	for _, game := range rows {
		if err := validateGame(&game); err != nil {
			return nil, err
		}
		catalog.games[game.ID] = game
		catalog.order = append(catalog.order, game.ID)
	}

	return catalog, nil
}

func (c *Catalog) Get(gameID string) (*models.Game, error) {
	game, ok := c.games[gameID]
	if !ok {
		return nil, &engine.ConfigError{Reason: fmt.Sprintf("no game with id %q", gameID)}
	}
	return &game, nil
}

func (c *Catalog) All() []models.Game {
	all := make([]models.Game, 0, len(c.order))
	for _, id := range c.order {
		all = append(all, c.games[id])
	}
	return all
}

// Bad game config is fatal at load, never defaulted at round time.
func validateGame(game *models.Game) error {
	switch {
	case game.RoundDurationSeconds <= 0:
		return &engine.ConfigError{Reason: fmt.Sprintf("game %s: round duration must be positive", game.ID)}
	case game.MinStake <= 0 || game.MaxStake < game.MinStake:
		return &engine.ConfigError{Reason: fmt.Sprintf("game %s: invalid stake bounds", game.ID)}
	case game.HouseEdge < 0 || game.HouseEdge >= 1:
		return &engine.ConfigError{Reason: fmt.Sprintf("game %s: house edge must be in [0, 1)", game.ID)}
	}

	switch game.Category {
	case models.CategoryCoinFlip:
		if game.OptionsCount != 2 {
			return &engine.ConfigError{Reason: fmt.Sprintf("game %s: coin_flip needs 2 options", game.ID)}
		}
	case models.CategoryWheel:
		if game.OptionsCount != 3 {
			return &engine.ConfigError{Reason: fmt.Sprintf("game %s: wheel needs 3 options", game.ID)}
		}
	case models.CategoryLuckyNumber:
		if game.OptionsCount < 2 {
			return &engine.ConfigError{Reason: fmt.Sprintf("game %s: lucky_number needs at least 2 options", game.ID)}
		}
	case models.CategoryLuckyWinner:
		// Options are not selectable; the staker set is the outcome space.
	default:
		return &engine.ConfigError{Reason: fmt.Sprintf("game %s: unknown category %q", game.ID, game.Category)}
	}

	return nil
}
