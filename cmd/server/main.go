package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/driftshare/driftshare/internal/api"
	"github.com/driftshare/driftshare/internal/config"
	"github.com/driftshare/driftshare/internal/database"
	"github.com/driftshare/driftshare/internal/password"
	"github.com/driftshare/driftshare/internal/repository"
	"github.com/driftshare/driftshare/internal/s3storage"
	"github.com/driftshare/driftshare/internal/share"
	"github.com/driftshare/driftshare/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	blobs, records, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init stores")
	}
	defer cleanup()

	engine := share.NewEngine(blobs, records, password.New(), cfg.SharePolicy(), logger)

	srv := api.New(cfg, engine, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

// buildStores wires either the real Postgres+MinIO stores or, when
// DRIFTSHARE_DEV_MEMORY is set, the in-memory stores so the server runs
// without any backing services.
func buildStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (share.BlobStore, share.RecordStore, func(), error) {
	if cfg.DevMemory {
		logger.Warn().Msg("running with in-memory stores; state is lost on exit")
		return storage.NewMemoryBlobStore(), storage.NewMemoryStore(), func() {}, nil
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	store, err := s3storage.New(cfg)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	return store, repository.NewShareRepository(pool), pool.Close, nil
}
