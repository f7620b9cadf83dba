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
	"github.com/jobpulse/jobpulse/pkg/execution"
	"github.com/jobpulse/jobpulse/pkg/reconciler"
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

	userRepo := postgres.NewUserRepository(db.DB())
	configRepo := postgres.NewWorkflowConfigRepository(db.DB())
	executionRepo := postgres.NewExecutionRepository(db.DB())
	presetRepo := postgres.NewPresetRepository(db.DB())
	resultRepo := postgres.NewJobResultRepository(db.DB())
	bus := eventbus.NewBus(redis.Client())

	engineClient := engine.NewClient(cfg.Engine, logger)
	orchestrator := execution.NewOrchestrator(
		engineClient, configRepo, executionRepo, presetRepo, resultRepo,
		bus, cfg.Static.DefaultWorkflowFile, logger)

	svc := reconciler.NewReconciler(configRepo, userRepo, orchestrator, logger, cfg.Reconciler.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("reconciler shutting down")
}
