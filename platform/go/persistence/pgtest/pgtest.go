// Package pgtest starts a disposable PostgreSQL container for integration tests and applies the
// platform migrations to it.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence"
)

// Database is a migrated, throwaway PostgreSQL instance.
type Database struct {
	DSN  string
	Pool *pgxpool.Pool
}

// Start runs postgres:16-alpine, migrates the platform schema and returns a pool sized for
// concurrent tests. It skips in -short mode and when no container provider is reachable.
// Everything is torn down through t.Cleanup.
func Start(t *testing.T) Database {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("appraisal"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, persistence.MigratePlatform(ctx, dsn))

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: dsn, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { persistence.ClosePool(pool) })

	return Database{DSN: dsn, Pool: pool}
}
