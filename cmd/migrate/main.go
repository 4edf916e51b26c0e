package main

import (
	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ojaydev11/halobuzz-sub010/cmd/db"
	"github.com/ojaydev11/halobuzz-sub010/internal/models"
	"github.com/ojaydev11/halobuzz-sub010/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file loaded: %v", err)
	}

	gormDB, err := db.Connect()
	if err != nil {
		logger.Fatal("database connection: %v", err)
	}

	if err := createTables(gormDB); err != nil {
		logger.Fatal("migration: %v", err)
	}

	if err := seedGames(gormDB); err != nil {
		logger.Fatal("seeding: %v", err)
	}

	logger.Info("Migrated.")
}

func createTables(gormDB *gorm.DB) error {
	return gormDB.AutoMigrate(
		&models.Game{},
		&models.Round{},
		&models.Stake{},
		&models.LedgerEntry{},
		&models.WalletAccount{},
	)
}

// seedGames installs one game per category. Re-running the migration leaves
// existing configurations untouched.
func seedGames(gormDB *gorm.DB) error {
	seed := []models.Game{
		{
			ID:                   "coin-flip-30s",
			Category:             models.CategoryCoinFlip,
			RoundDurationSeconds: 30,
			MinStake:             10,
			MaxStake:             10000,
			OptionsCount:         2,
			HouseEdge:            0.03,
		},
		{
			ID:                   "wheel-60s",
			Category:             models.CategoryWheel,
			RoundDurationSeconds: 60,
			MinStake:             10,
			MaxStake:             10000,
			OptionsCount:         3,
			HouseEdge:            0.03,
		},
		{
			ID:                   "lucky-number-60s",
			Category:             models.CategoryLuckyNumber,
			RoundDurationSeconds: 60,
			MinStake:             10,
			MaxStake:             5000,
			OptionsCount:         10,
			HouseEdge:            0.05,
		},
		{
			ID:                   "lucky-winner-120s",
			Category:             models.CategoryLuckyWinner,
			RoundDurationSeconds: 120,
			MinStake:             50,
			MaxStake:             20000,
			OptionsCount:         1,
			HouseEdge:            0.05,
		},
	}

	for _, game := range seed {
		err := gormDB.Clauses(clause.OnConflict{DoNothing: true}).Create(&game).Error
		if err != nil {
			return logger.WrapError(err, "")
		}
	}

	return nil
}
