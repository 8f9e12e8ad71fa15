package persistence_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence"
	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence/pgtest"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

func TestTenantDBAgainstPostgres(t *testing.T) {
	db := pgtest.Start(t)
	ctx := context.Background()

	version, err := persistence.PlatformVersion(ctx, db.DSN)
	require.NoError(t, err)
	require.EqualValues(t, 2, version)

	// idempotent
	require.NoError(t, persistence.MigratePlatform(ctx, db.DSN))

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: db.DSN, MaxConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { persistence.ClosePool(pool) })

	_, err = pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS acme`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS acme.departments (name TEXT)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO acme.departments (name) VALUES ('Finance')`)
	require.NoError(t, err)

	tdb := persistence.NewTenantDB(persistence.TenantDBConfig{Pool: pool, Logger: zaptest.NewLogger(t)})

	var name, searchPath string
	err = tdb.WithTenant(ctx, tenant.SpaceForKey("acme"), func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SHOW search_path`).Scan(&searchPath); err != nil {
			return err
		}
		// unqualified names resolve inside the tenant schema
		return tx.QueryRow(ctx, `SELECT name FROM departments`).Scan(&name)
	})
	require.NoError(t, err)
	require.Equal(t, "Finance", name)
	require.Equal(t, "acme, public", searchPath)

	// the single pooled connection went back with the platform search_path
	err = pool.QueryRow(ctx, `SHOW search_path`).Scan(&searchPath)
	require.NoError(t, err)
	require.Equal(t, "public", searchPath)

	// organizations is reachable from both the platform and the tenant binding
	var count int
	err = tdb.WithPlatform(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&count)
	})
	require.NoError(t, err)
	require.Zero(t, count)

	dir, err := persistence.NewSchemaDirectory(persistence.SchemaDirectoryConfig{Pool: pool})
	require.NoError(t, err)
	t.Cleanup(dir.Close)

	ok, err := dir.Exists(ctx, "acme")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = dir.Exists(ctx, "nobody")
	require.NoError(t, err)
	require.False(t, ok)
}
