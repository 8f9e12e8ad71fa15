package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	schemaExistsSQL = `SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)`

	defaultDirectoryTTL     = 5 * time.Minute
	defaultDirectoryEntries = 10_000
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SchemaDirectory answers whether a tenant schema has been provisioned. Positive answers are
// cached in-process; misses always hit the catalog so a freshly provisioned tenant is visible
// on its first request.
type SchemaDirectory struct {
	db    rowQuerier
	cache *ristretto.Cache[string, bool]
	ttl   time.Duration
}

type SchemaDirectoryConfig struct {
	Pool       *pgxpool.Pool
	TTL        time.Duration
	MaxEntries int64
}

func NewSchemaDirectory(cfg SchemaDirectoryConfig) (*SchemaDirectory, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("schema directory requires pool")
	}
	return newSchemaDirectory(cfg.Pool, cfg.TTL, cfg.MaxEntries)
}

func newSchemaDirectory(db rowQuerier, ttl time.Duration, maxEntries int64) (*SchemaDirectory, error) {
	if ttl <= 0 {
		ttl = defaultDirectoryTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultDirectoryEntries
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, bool]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("schema directory cache: %w", err)
	}

	return &SchemaDirectory{db: db, cache: cache, ttl: ttl}, nil
}

// Exists reports whether schema is present in pg_namespace.
func (d *SchemaDirectory) Exists(ctx context.Context, schema string) (bool, error) {
	if ok, found := d.cache.Get(schema); found && ok {
		return true, nil
	}

	var exists bool
	if err := d.db.QueryRow(ctx, schemaExistsSQL, schema).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup schema %q: %w", schema, err)
	}
	if exists {
		d.cache.SetWithTTL(schema, true, 1, d.ttl)
	}
	return exists, nil
}

// Remember marks schema as present, typically right after provisioning it.
func (d *SchemaDirectory) Remember(schema string) {
	d.cache.SetWithTTL(schema, true, 1, d.ttl)
}

// Forget drops any cached answer for schema.
func (d *SchemaDirectory) Forget(schema string) {
	d.cache.Del(schema)
}

// Close releases the cache's background goroutines.
func (d *SchemaDirectory) Close() {
	d.cache.Close()
}
