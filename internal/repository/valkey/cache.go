package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
	"github.com/mapsync-service/internal/domain/repository"
)

// Cache implements repository.CacheRepository on Valkey.
type Cache struct {
	client valkey.Client
	clock  clock.Clock
	logger *zap.Logger
}

var _ repository.CacheRepository = (*Cache)(nil)

// New connects to a single Valkey node.
func New(addr string, logger *zap.Logger) (*Cache, error) {
	return NewWithOption(valkey.ClientOption{InitAddress: []string{addr}}, logger)
}

func NewWithOption(opt valkey.ClientOption, logger *zap.Logger) (*Cache, error) {
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	logger.Info("Valkey connected", zap.Strings("addr", opt.InitAddress))
	return &Cache{client: client, clock: clock.New(), logger: logger}, nil
}

func key(namespace, k string) string {
	return "mapsync:" + namespace + ":" + k
}

func (c *Cache) Get(ctx context.Context, namespace, k string) (*domain.StoredEntry, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(key(namespace, k)).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("valkey get: %w", err)
	}

	var entry domain.StoredEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		c.logger.Warn("Discarding malformed cache entry", zap.String("key", key(namespace, k)), zap.Error(err))
		return nil, c.Delete(ctx, namespace, k)
	}
	return &entry, nil
}

// WithClock replaces the clock used to compute the remaining lifetime on Set.
func (c *Cache) WithClock(clk clock.Clock) *Cache {
	c.clock = clk
	return c
}

func (c *Cache) Set(ctx context.Context, namespace, k string, entry domain.StoredEntry) error {
	remaining := entry.Remaining(c.clock.Now())
	if remaining <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	// EX has second resolution and rejects zero
	ttl := remaining.Round(time.Second)
	if ttl < time.Second {
		ttl = time.Second
	}

	cmd := c.client.B().Set().Key(key(namespace, k)).Value(string(data)).Ex(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, namespace, k string) error {
	if err := c.client.Do(ctx, c.client.B().Del().Key(key(namespace, k)).Build()).Error(); err != nil {
		return fmt.Errorf("valkey del: %w", err)
	}
	return nil
}

func (c *Cache) Close() {
	c.client.Close()
}
