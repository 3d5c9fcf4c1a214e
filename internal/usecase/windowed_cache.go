package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
	"github.com/mapsync-service/internal/domain/repository"
	"github.com/mapsync-service/internal/pkg/metrics"
)

// CacheOptions configures a WindowedCache.
type CacheOptions struct {
	// Namespace separates this cache's keys in the persistent store and in metrics.
	Namespace string
	TTL       time.Duration
	// MaxEntries bounds the memory tier; zero disables pruning.
	MaxEntries int
	// PruneTo is the size the memory tier is cut back to once MaxEntries is exceeded.
	PruneTo int
}

// Producer fetches a payload for a cache miss.
type Producer[T any] func(ctx context.Context) (T, error)

// pendingLookup is the single in-flight fetch for a key. Every caller of
// Coalesce for that key waits on done and reads the same payload.
type pendingLookup[T any] struct {
	key       string
	requestID uint64
	done      chan struct{}
	payload   T
	err       error
	waiters   int
	cancel    context.CancelFunc
}

// WindowedCache is a TTL cache with a memory tier, an optional persistent
// tier, and per-key coalescing of in-flight lookups.
type WindowedCache[T any] struct {
	opts   CacheOptions
	store  repository.CacheRepository
	clock  clock.Clock
	logger *zap.Logger

	mu       sync.Mutex
	entries  map[string]domain.CacheEntry[T]
	pending  map[string]*pendingLookup[T]
	lookupID uint64
}

// NewWindowedCache builds a cache. store may be nil for a memory-only cache.
func NewWindowedCache[T any](opts CacheOptions, store repository.CacheRepository, clk clock.Clock, logger *zap.Logger) *WindowedCache[T] {
	if opts.PruneTo <= 0 || opts.PruneTo > opts.MaxEntries {
		opts.PruneTo = opts.MaxEntries
	}
	return &WindowedCache[T]{
		opts:    opts,
		store:   store,
		clock:   clk,
		logger:  logger.With(zap.String("cache", opts.Namespace)),
		entries: make(map[string]domain.CacheEntry[T]),
		pending: make(map[string]*pendingLookup[T]),
	}
}

// Get returns a fresh payload. Expired entries are never returned.
func (c *WindowedCache[T]) Get(ctx context.Context, key string) (T, bool) {
	if v, ok := c.memoryGet(key); ok {
		metrics.CacheHits.WithLabelValues(c.opts.Namespace, "memory").Inc()
		return v, true
	}

	if v, ok := c.persistentGet(ctx, key); ok {
		metrics.CacheHits.WithLabelValues(c.opts.Namespace, "persistent").Inc()
		return v, true
	}

	metrics.CacheMisses.WithLabelValues(c.opts.Namespace).Inc()
	var zero T
	return zero, false
}

// Set writes through both tiers. Persistent failures are logged only.
func (c *WindowedCache[T]) Set(ctx context.Context, key string, payload T, ttl time.Duration) {
	entry := domain.CacheEntry[T]{Key: key, Payload: payload, InsertedAt: c.clock.Now(), TTL: ttl}

	c.mu.Lock()
	c.entries[key] = entry
	c.pruneLocked()
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	value, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("Failed to encode cache payload", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, c.opts.Namespace, key, domain.NewStoredEntry(entry.InsertedAt, ttl, value)); err != nil {
		c.logger.Warn("Persistent cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops key from both tiers.
func (c *WindowedCache[T]) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Delete(ctx, c.opts.Namespace, key); err != nil {
			c.logger.Warn("Persistent cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Coalesce returns a fresh cached payload or joins the single in-flight
// producer for key, starting one if none exists. The producer runs detached
// from any one caller and is cancelled only when every waiter has gone.
func (c *WindowedCache[T]) Coalesce(ctx context.Context, key string, produce Producer[T]) (T, error) {
	var zero T
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.Valid(c.clock.Now()) {
		c.mu.Unlock()
		return e.Payload, nil
	}
	p, joined := c.pending[key]
	if !joined {
		c.lookupID++
		pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		p = &pendingLookup[T]{
			key:       key,
			requestID: c.lookupID,
			done:      make(chan struct{}),
			cancel:    cancel,
		}
		c.pending[key] = p
		go c.run(pctx, p, produce)
	} else {
		metrics.CacheCoalesced.WithLabelValues(c.opts.Namespace).Inc()
	}
	p.waiters++
	c.mu.Unlock()

	select {
	case <-p.done:
		return p.payload, p.err
	case <-ctx.Done():
		c.abandon(p)
		return zero, ctx.Err()
	}
}

// Pending reports the lookup id of the in-flight producer for key.
func (c *WindowedCache[T]) Pending(key string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[key]
	if !ok {
		return 0, false
	}
	return p.requestID, true
}

// Len is the number of entries held in memory, fresh or not.
func (c *WindowedCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *WindowedCache[T]) run(ctx context.Context, p *pendingLookup[T], produce Producer[T]) {
	defer p.cancel()

	payload, err := produce(ctx)
	if err == nil {
		c.Set(context.WithoutCancel(ctx), p.key, payload, c.opts.TTL)
	}

	c.mu.Lock()
	p.payload, p.err = payload, err
	if c.pending[p.key] == p {
		delete(c.pending, p.key)
	}
	close(p.done)
	c.mu.Unlock()
}

func (c *WindowedCache[T]) abandon(p *pendingLookup[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.waiters--
	if p.waiters > 0 {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	// nobody is left to receive the result; a later caller starts afresh
	if c.pending[p.key] == p {
		delete(c.pending, p.key)
	}
	p.cancel()
}

func (c *WindowedCache[T]) memoryGet(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !e.Valid(c.clock.Now()) {
		delete(c.entries, key)
		metrics.CacheEvictions.WithLabelValues(c.opts.Namespace, "expired").Inc()
		return zero, false
	}
	return e.Payload, true
}

func (c *WindowedCache[T]) persistentGet(ctx context.Context, key string) (T, bool) {
	var zero T
	if c.store == nil {
		return zero, false
	}

	stored, err := c.store.Get(ctx, c.opts.Namespace, key)
	if err != nil {
		c.logger.Warn("Persistent cache read failed", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	if stored == nil {
		return zero, false
	}

	if !stored.Valid(c.clock.Now()) {
		c.deleteStored(ctx, key)
		return zero, false
	}

	var payload T
	if err := json.Unmarshal(stored.Value, &payload); err != nil {
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.deleteStored(ctx, key)
		return zero, false
	}

	// promotion keeps the original insertion time so it never extends life
	promoted := domain.CacheEntry[T]{
		Key:        key,
		Payload:    payload,
		InsertedAt: stored.InsertedAt(),
		TTL:        stored.Lifetime(),
	}
	c.mu.Lock()
	if existing, ok := c.entries[key]; !ok || existing.InsertedAt.Before(promoted.InsertedAt) {
		c.entries[key] = promoted
		c.pruneLocked()
	}
	c.mu.Unlock()

	return payload, true
}

func (c *WindowedCache[T]) deleteStored(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, c.opts.Namespace, key); err != nil {
		c.logger.Debug("Best-effort delete of stale entry failed", zap.String("key", key), zap.Error(err))
	}
}

// pruneLocked drops expired entries, then the oldest ones, once the memory
// tier grows past MaxEntries. c.mu must be held.
func (c *WindowedCache[T]) pruneLocked() {
	if c.opts.MaxEntries <= 0 || len(c.entries) <= c.opts.MaxEntries {
		return
	}

	now := c.clock.Now()
	for k, e := range c.entries {
		if !e.Valid(now) {
			delete(c.entries, k)
			metrics.CacheEvictions.WithLabelValues(c.opts.Namespace, "expired").Inc()
		}
	}
	if len(c.entries) <= c.opts.MaxEntries {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].InsertedAt.Before(c.entries[keys[j]].InsertedAt)
	})

	excess := len(c.entries) - c.opts.PruneTo
	for _, k := range keys[:excess] {
		delete(c.entries, k)
		metrics.CacheEvictions.WithLabelValues(c.opts.Namespace, "capacity").Inc()
	}
}
