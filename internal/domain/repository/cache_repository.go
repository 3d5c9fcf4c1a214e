package repository

import (
	"context"

	"github.com/mapsync-service/internal/domain"
)

// CacheRepository is the persistent tier behind a windowed cache.
// Entries are grouped by namespace so venue windows and route labels never collide.
type CacheRepository interface {
	// Get returns nil, nil when the key is absent.
	Get(ctx context.Context, namespace, key string) (*domain.StoredEntry, error)

	// Set stores the entry; stores with native expiry use the entry's remaining lifetime.
	Set(ctx context.Context, namespace, key string, entry domain.StoredEntry) error

	Delete(ctx context.Context, namespace, key string) error
}
