package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/mapsync-service/internal/domain"
	"github.com/mapsync-service/internal/domain/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "mapsync"

type cacheRepository struct {
	client *redis.Client
	clock  clock.Clock
	logger *zap.Logger
}

func NewCacheRepository(redis *Redis) repository.CacheRepository {
	return NewCacheRepositoryWithClock(redis, clock.New())
}

func NewCacheRepositoryWithClock(redis *Redis, clk clock.Clock) repository.CacheRepository {
	return &cacheRepository{
		client: redis.Client(),
		clock:  clk,
		logger: redis.logger,
	}
}

func redisKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, namespace, key)
}

func (r *cacheRepository) Get(ctx context.Context, namespace, key string) (*domain.StoredEntry, error) {
	k := redisKey(namespace, key)
	val, err := r.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get from cache", zap.String("key", k), zap.Error(err))
		return nil, fmt.Errorf("cache get error: %w", err)
	}

	var entry domain.StoredEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		// unreadable envelopes are treated as misses and dropped
		r.logger.Warn("Discarding malformed cache entry", zap.String("key", k), zap.Error(err))
		_ = r.client.Del(ctx, k).Err()
		return nil, nil
	}

	r.logger.Debug("Cache hit", zap.String("key", k))
	return &entry, nil
}

func (r *cacheRepository) Set(ctx context.Context, namespace, key string, entry domain.StoredEntry) error {
	k := redisKey(namespace, key)
	// a zero expiration would make the key persistent
	ttl := entry.Remaining(r.clock.Now())
	if ttl <= 0 {
		r.logger.Debug("Skipping expired cache entry", zap.String("key", k))
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := r.client.Set(ctx, k, data, ttl).Err(); err != nil {
		r.logger.Error("Failed to set cache", zap.String("key", k), zap.Error(err))
		return fmt.Errorf("cache set error: %w", err)
	}

	r.logger.Debug("Cache set", zap.String("key", k), zap.Duration("ttl", ttl))
	return nil
}

func (r *cacheRepository) Delete(ctx context.Context, namespace, key string) error {
	k := redisKey(namespace, key)
	if err := r.client.Del(ctx, k).Err(); err != nil {
		r.logger.Error("Failed to delete from cache", zap.String("key", k), zap.Error(err))
		return fmt.Errorf("cache delete error: %w", err)
	}

	r.logger.Debug("Cache deleted", zap.String("key", k))
	return nil
}
