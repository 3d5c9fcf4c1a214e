package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
	"github.com/mapsync-service/internal/domain/repository"
	"github.com/mapsync-service/internal/pkg/metrics"
)

type cacheRow struct {
	Value    []byte `db:"value"`
	StoredAt int64  `db:"stored_at"`
	TTLMs    int64  `db:"ttl_ms"`
}

// CacheRepository keeps windowed cache entries in a single cache_entries table.
type CacheRepository struct {
	db *DB
}

var _ repository.CacheRepository = (*CacheRepository)(nil)

func NewCacheRepository(db *DB) *CacheRepository {
	return &CacheRepository{db: db}
}

func (r *CacheRepository) Get(ctx context.Context, namespace, key string) (*domain.StoredEntry, error) {
	query := `
		SELECT value::text AS value, stored_at, ttl_ms
		FROM cache_entries
		WHERE namespace = $1 AND key = $2
	`

	var row cacheRow
	err := r.db.GetContext(ctx, &row, query, namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.db.logger.Error("Failed to get cache entry",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, fmt.Errorf("get cache entry: %w", err)
	}

	return &domain.StoredEntry{
		Timestamp: row.StoredAt,
		TTL:       row.TTLMs,
		Value:     json.RawMessage(row.Value),
	}, nil
}

func (r *CacheRepository) Set(ctx context.Context, namespace, key string, entry domain.StoredEntry) error {
	query := `
		INSERT INTO cache_entries (namespace, key, value, stored_at, ttl_ms, expires_at)
		VALUES ($1, $2, $3::jsonb, $4, $5, to_timestamp(($4 + $5) / 1000.0))
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = EXCLUDED.value,
			stored_at = EXCLUDED.stored_at,
			ttl_ms = EXCLUDED.ttl_ms,
			expires_at = EXCLUDED.expires_at
	`

	if _, err := r.db.ExecContext(ctx, query, namespace, key, string(entry.Value), entry.Timestamp, entry.TTL); err != nil {
		r.db.logger.Error("Failed to store cache entry",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

func (r *CacheRepository) Delete(ctx context.Context, namespace, key string) error {
	query := `DELETE FROM cache_entries WHERE namespace = $1 AND key = $2`

	if _, err := r.db.ExecContext(ctx, query, namespace, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// PurgeExpired deletes every row past its expiry and reports how many were removed.
func (r *CacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}

	metrics.UpdateDBPoolMetrics(r.db.Stats())
	return n, nil
}
