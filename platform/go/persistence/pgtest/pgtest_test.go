package pgtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartMigratesPlatformSchema(t *testing.T) {
	db := Start(t)
	ctx := context.Background()

	require.NotEmpty(t, db.DSN)
	require.NoError(t, db.Pool.Ping(ctx))

	var exists bool
	require.NoError(t, db.Pool.QueryRow(ctx,
		`SELECT to_regclass('public.organizations') IS NOT NULL`).Scan(&exists))
	require.True(t, exists)
}
