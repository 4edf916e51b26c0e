package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/ojaydev11/halobuzz-sub010/cmd/db"
	"github.com/ojaydev11/halobuzz-sub010/internal/app"
	"github.com/ojaydev11/halobuzz-sub010/pkg/logger"
	"github.com/ojaydev11/halobuzz-sub010/pkg/redis"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file loaded: %v", err)
	}

	gormDB, err := db.Connect()
	if err != nil {
		logger.Fatal("database connection: %v", err)
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "redis:6379"
	}
	redisService := redis.NewRedisService(redisAddr, os.Getenv("REDIS_PASSWORD"))

	if err := app.Start(gormDB, redisService); err != nil {
		logger.Fatal("%v", err)
	}
}
