package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/appraisal-saas/platform/go/logging"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

const (
	setSearchPathSQL    = `SELECT set_config('search_path', $1, false)`
	defaultResetTimeout = 5 * time.Second
)

// session is one pooled connection held for a single unit of work.
type session interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Release()
	// Discard closes the underlying connection so the pool drops it on Release.
	Discard(ctx context.Context) error
}

type sessionSource interface {
	acquire(ctx context.Context) (session, error)
}

type poolSessions struct{ pool *pgxpool.Pool }

func (p poolSessions) acquire(ctx context.Context) (session, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pooledSession{conn: conn}, nil
}

type pooledSession struct{ conn *pgxpool.Conn }

func (s pooledSession) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.conn.Exec(ctx, sql, args...)
}

func (s pooledSession) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return s.conn.BeginTx(ctx, txOptions)
}

func (s pooledSession) Release() { s.conn.Release() }

func (s pooledSession) Discard(ctx context.Context) error { return s.conn.Conn().Close(ctx) }

// TenantDB binds pooled connections to a tenant schema for the lifetime of one unit of work.
//
// Every call acquires a connection, sets the session search_path before any other statement,
// runs fn inside a transaction and, whatever the outcome, resets the search_path to the
// platform schema before the connection goes back to the pool. A failed reset is logged and
// the connection is discarded; it never masks the unit of work's own result.
type TenantDB struct {
	sessions       sessionSource
	platformSchema string
	logger         *zap.Logger
	resetTimeout   time.Duration
}

type TenantDBConfig struct {
	Pool *pgxpool.Pool
	// PlatformSchema is the shared schema appended to every search_path and restored after
	// each unit of work. Defaults to "public".
	PlatformSchema string
	Logger         *zap.Logger
}

func NewTenantDB(cfg TenantDBConfig) *TenantDB {
	if cfg.Pool == nil {
		panic("TenantDB requires pool")
	}
	return newTenantDB(poolSessions{pool: cfg.Pool}, cfg.PlatformSchema, cfg.Logger)
}

func newTenantDB(sessions sessionSource, platformSchema string, logger *zap.Logger) *TenantDB {
	platformSchema = strings.TrimSpace(platformSchema)
	if platformSchema == "" {
		platformSchema = tenant.DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantDB{
		sessions:       sessions,
		platformSchema: platformSchema,
		logger:         logger,
		resetTimeout:   defaultResetTimeout,
	}
}

// PlatformSchema returns the shared schema name.
func (db *TenantDB) PlatformSchema() string {
	return db.platformSchema
}

// WithTenant executes fn inside a transaction with search_path set to the tenant schema
// followed by the platform schema.
func (db *TenantDB) WithTenant(ctx context.Context, space tenant.Space, fn func(tx pgx.Tx) error) error {
	if err := tenant.ValidateSchemaName(space.SchemaName); err != nil {
		return fmt.Errorf("bind tenant: %w", err)
	}
	return db.within(ctx, space.SchemaName, fn)
}

// WithPlatform executes fn inside a transaction scoped to the platform schema only.
func (db *TenantDB) WithPlatform(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.within(ctx, db.platformSchema, fn)
}

func (db *TenantDB) within(ctx context.Context, schema string, fn func(tx pgx.Tx) error) error {
	sess, err := db.sessions.acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer sess.Release()
	defer db.reset(ctx, sess, schema)

	if _, err := sess.Exec(ctx, setSearchPathSQL, db.searchPath(schema)); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	tx, err := sess.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// reset restores the platform search_path. It runs on a context detached from the caller's
// cancellation so a timed-out request still cleans up its connection.
func (db *TenantDB) reset(ctx context.Context, sess session, schema string) {
	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), db.resetTimeout)
	defer cancel()

	if _, err := sess.Exec(resetCtx, setSearchPathSQL, pgx.Identifier{db.platformSchema}.Sanitize()); err != nil {
		logger := platformlogging.FromContextOr(ctx, db.logger)
		logger.Warn("reset search_path failed, discarding connection",
			zap.String("schema", schema),
			zap.Error(err),
		)
		if derr := sess.Discard(resetCtx); derr != nil {
			logger.Debug("discard connection", zap.Error(derr))
		}
	}
}

func (db *TenantDB) searchPath(schema string) string {
	if schema == db.platformSchema {
		return pgx.Identifier{schema}.Sanitize()
	}
	return pgx.Identifier{schema}.Sanitize() + ", " + pgx.Identifier{db.platformSchema}.Sanitize()
}
