package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/driftshare/driftshare/internal/config"
	"github.com/driftshare/driftshare/internal/database"
	"github.com/driftshare/driftshare/internal/password"
	"github.com/driftshare/driftshare/internal/queue"
	"github.com/driftshare/driftshare/internal/repository"
	"github.com/driftshare/driftshare/internal/s3storage"
	"github.com/driftshare/driftshare/internal/share"
	"github.com/driftshare/driftshare/internal/sweeper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("ensure schema")
	}
	repo := repository.NewShareRepository(pool)

	store, err := s3storage.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("init storage")
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ensure bucket")
	}

	engine := share.NewEngine(store, repo, password.New(), cfg.SharePolicy(), logger)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// The scheduler enqueues the sweep on the configured cron spec; the server
	// below consumes it. Running both in one process keeps the deployment to a
	// single sweeper binary.
	scheduler := asynq.NewScheduler(redisOpt, nil)
	task, err := queue.NewReclaimTask()
	if err != nil {
		logger.Fatal().Err(err).Msg("build reclaim task")
	}
	if _, err := scheduler.Register(cfg.SweepCron, task); err != nil {
		logger.Fatal().Err(err).Msg("register sweep schedule")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
	})
	processor := sweeper.NewProcessor(engine, logger)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		scheduler.Shutdown()
		server.Shutdown()
	}()

	logger.Info().Str("cron", cfg.SweepCron).Msg("sweeper running")
	if err := server.Run(mux); err != nil {
		logger.Error().Err(err).Msg("sweeper stopped")
		os.Exit(1)
	}
}
