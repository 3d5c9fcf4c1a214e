package testhelpers

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/repository/postgres"
)

// NewCacheRepositoryForTest builds the Postgres cache store over a test connection.
func NewCacheRepositoryForTest(db *sqlx.DB, logger *zap.Logger) *postgres.CacheRepository {
	return postgres.NewCacheRepository(postgres.NewDBForTest(db, logger))
}
