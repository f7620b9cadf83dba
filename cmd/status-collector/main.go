package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/jobpulse/jobpulse/pkg/config"
	"github.com/jobpulse/jobpulse/pkg/engine"
	"github.com/jobpulse/jobpulse/pkg/eventbus"
	"github.com/jobpulse/jobpulse/pkg/statuspoller"
	"github.com/jobpulse/jobpulse/pkg/store/postgres"
	redisclient "github.com/jobpulse/jobpulse/pkg/store/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redis, err := redisclient.NewClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redis.Close()

	executionRepo := postgres.NewExecutionRepository(db.DB())
	bus := eventbus.NewBus(redis.Client())
	engineClient := engine.NewClient(cfg.Engine, logger)

	poller := statuspoller.NewPoller(engineClient, executionRepo, bus, logger, cfg.StatusPoller.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go poller.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("status collector shutting down")
}
