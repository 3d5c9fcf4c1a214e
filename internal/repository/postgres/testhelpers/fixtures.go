package testhelpers

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// CacheFixture is a row inserted directly, bypassing the repository.
type CacheFixture struct {
	Namespace string
	Key       string
	Value     string
	StoredAt  time.Time
	TTL       time.Duration
}

// LoadCacheFixtures inserts rows with expires_at derived from StoredAt and TTL.
func LoadCacheFixtures(ctx context.Context, db *sqlx.DB, fixtures []CacheFixture) error {
	for _, f := range fixtures {
		_, err := db.ExecContext(ctx, `
			INSERT INTO cache_entries (namespace, key, value, stored_at, ttl_ms, expires_at)
			VALUES ($1, $2, $3::jsonb, $4, $5, $6)`,
			f.Namespace, f.Key, f.Value, f.StoredAt.UnixMilli(), f.TTL.Milliseconds(), f.StoredAt.Add(f.TTL),
		)
		if err != nil {
			return fmt.Errorf("load fixture %s/%s: %w", f.Namespace, f.Key, err)
		}
	}
	return nil
}
