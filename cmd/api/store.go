package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mapsync-service/internal/config"
	"github.com/mapsync-service/internal/domain/repository"
	"github.com/mapsync-service/internal/repository/cache"
	"github.com/mapsync-service/internal/repository/postgres"
	"github.com/mapsync-service/internal/repository/valkey"
	cacheWorker "github.com/mapsync-service/internal/worker/cache"
)

// cacheStore is the persistent tier selected by CACHE_BACKEND.
type cacheStore struct {
	repo   repository.CacheRepository
	purger cacheWorker.Purger
	close  func() error
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*cacheStore, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		return &cacheStore{close: func() error { return nil }}, nil

	case config.CacheBackendRedis:
		redisClient, err := cache.NewRedis(&cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		if err := redisClient.Health(ctx); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("redis health check: %w", err)
		}
		return &cacheStore{repo: cache.NewCacheRepository(redisClient), close: redisClient.Close}, nil

	case config.CacheBackendValkey:
		vk, err := valkey.New(cfg.Valkey.Addr, log)
		if err != nil {
			return nil, err
		}
		return &cacheStore{repo: vk, close: func() error { vk.Close(); return nil }}, nil

	case config.CacheBackendPostgres:
		db, err := postgres.New(&cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate cache schema: %w", err)
		}
		repo := postgres.NewCacheRepository(db)
		return &cacheStore{repo: repo, purger: repo, close: db.Close}, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}
