package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ojaydev11/halobuzz-sub010/internal/games"
	"github.com/ojaydev11/halobuzz-sub010/internal/service"
	"github.com/ojaydev11/halobuzz-sub010/internal/settle"
	"github.com/ojaydev11/halobuzz-sub010/internal/store"
	"github.com/ojaydev11/halobuzz-sub010/internal/wallet"
	"github.com/ojaydev11/halobuzz-sub010/pkg/logger"
	"github.com/ojaydev11/halobuzz-sub010/pkg/redis"
)

const apiPrefix = "api/"

const defaultSweepInterval = 5 * time.Second

// Start wires the engine together and serves it until SIGINT/SIGTERM.
func Start(db *gorm.DB, redisService *redis.RedisService) error {
	gin.DisableConsoleColor()

	catalog, err := games.LoadCatalog(db)
	if err != nil {
		return err
	}

	sweepInterval := defaultSweepInterval
	if raw := os.Getenv("SETTLE_SWEEP_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return logger.WrapError(fmt.Errorf("invalid SETTLE_SWEEP_INTERVAL %q", raw), "")
		}
		sweepInterval = parsed
	}

	ledgerWallet := wallet.NewLedgerWallet(db)
	rounds := store.NewRoundStore(db)
	stakes := store.NewStakeLedger(db, rounds, catalog, ledgerWallet)
	coordinator := settle.NewCoordinator(db, rounds, stakes, catalog, ledgerWallet)
	scheduler := settle.NewScheduler(coordinator, rounds, sweepInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Supervise(ctx)

	roundsService := service.NewRoundsService(catalog, rounds, stakes, coordinator, redisService)

	router := gin.Default()

	// rounds
	{
		router.GET(apiPrefix+"games/rounds/current", roundsService.GetCurrentRound)
		router.GET(apiPrefix+"games/rounds/history", roundsService.GetHistory)
		router.GET(apiPrefix+"games/rounds/:id/result", roundsService.GetResult)
		router.GET(apiPrefix+"games/rounds/:id/verify", roundsService.Verify)
		router.POST(apiPrefix+"games/rounds/stake", roundsService.PlaceStake)
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: router.Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server...")

	// Stop the sweep loop before the listener so no settlement starts while
	// we drain.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return logger.WrapError(err, "")
	}

	logger.Info("Server exiting")
	return nil
}
