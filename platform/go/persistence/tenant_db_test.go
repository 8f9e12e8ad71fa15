package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

// fakeTx satisfies pgx.Tx and records how the transaction ended.
type fakeTx struct {
	stmts      []string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) Commit(ctx context.Context) error { f.committed = true; return nil }
func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}
func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, errors.New("not implemented")
}
func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Conn() *pgx.Conn { return nil }

// fakeSession records the search_path values it is given.
type fakeSession struct {
	tx         *fakeTx
	paths      []string
	resetErr   error
	setErr     error
	released   bool
	discarded  bool
	beganAfter int
}

func (s *fakeSession) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	path, _ := args[0].(string)
	s.paths = append(s.paths, path)
	if len(s.paths) == 1 && s.setErr != nil {
		return pgconn.CommandTag{}, s.setErr
	}
	if len(s.paths) > 1 && s.resetErr != nil {
		return pgconn.CommandTag{}, s.resetErr
	}
	return pgconn.CommandTag{}, nil
}

func (s *fakeSession) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	s.beganAfter = len(s.paths)
	return s.tx, nil
}

func (s *fakeSession) Release() { s.released = true }

func (s *fakeSession) Discard(ctx context.Context) error { s.discarded = true; return nil }

type fakeSessions struct {
	sess *fakeSession
	err  error
}

func (f *fakeSessions) acquire(ctx context.Context) (session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

func newFakeDB(sess *fakeSession, logger *zap.Logger) *TenantDB {
	return newTenantDB(&fakeSessions{sess: sess}, "", logger)
}

func TestWithTenantBindsBeforeTransactionAndResets(t *testing.T) {
	sess := &fakeSession{tx: &fakeTx{}}
	db := newFakeDB(sess, nil)

	var ran bool
	err := db.WithTenant(context.Background(), tenant.SpaceForKey("acme"), func(tx pgx.Tx) error {
		ran = true
		_, err := tx.Exec(context.Background(), "SELECT 1")
		return err
	})
	require.NoError(t, err)
	require.True(t, ran)

	require.Equal(t, []string{`"acme", "public"`, `"public"`}, sess.paths)
	require.Equal(t, 1, sess.beganAfter, "search_path must be set before the transaction begins")
	require.True(t, sess.tx.committed)
	require.True(t, sess.released)
	require.False(t, sess.discarded)
}

func TestWithPlatformUsesOnlyPlatformSchema(t *testing.T) {
	sess := &fakeSession{tx: &fakeTx{}}
	db := newFakeDB(sess, nil)

	err := db.WithPlatform(context.Background(), func(tx pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Equal(t, []string{`"public"`, `"public"`}, sess.paths)
}

func TestWithTenantResetsOnFailure(t *testing.T) {
	sess := &fakeSession{tx: &fakeTx{}}
	db := newFakeDB(sess, nil)
	boom := errors.New("boom")

	err := db.WithTenant(context.Background(), tenant.SpaceForKey("acme"), func(tx pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.True(t, sess.tx.rolledBack)
	require.False(t, sess.tx.committed)
	require.Equal(t, `"public"`, sess.paths[len(sess.paths)-1])
	require.True(t, sess.released)
}

func TestWithTenantResetFailureIsLoggedAndConnectionDiscarded(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sess := &fakeSession{tx: &fakeTx{}, resetErr: errors.New("conn lost")}
	db := newFakeDB(sess, zap.New(core))

	err := db.WithTenant(context.Background(), tenant.SpaceForKey("acme"), func(tx pgx.Tx) error { return nil })
	require.NoError(t, err, "reset failures never propagate")
	require.True(t, sess.discarded)
	require.True(t, sess.released)

	entries := logs.FilterMessage("reset search_path failed, discarding connection").FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, entries, 1)
	require.Equal(t, "acme", entries[0].ContextMap()["schema"])
}

func TestWithTenantResetFailureDoesNotMaskUnitError(t *testing.T) {
	sess := &fakeSession{tx: &fakeTx{}, resetErr: errors.New("conn lost")}
	db := newFakeDB(sess, nil)
	boom := errors.New("boom")

	err := db.WithTenant(context.Background(), tenant.SpaceForKey("acme"), func(tx pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.True(t, sess.discarded)
}

func TestWithTenantSetSearchPathFailure(t *testing.T) {
	sess := &fakeSession{tx: &fakeTx{}, setErr: errors.New("denied")}
	db := newFakeDB(sess, nil)

	var ran bool
	err := db.WithTenant(context.Background(), tenant.SpaceForKey("acme"), func(tx pgx.Tx) error { ran = true; return nil })
	require.ErrorContains(t, err, "set search_path")
	require.False(t, ran)
	require.True(t, sess.released)
}

func TestWithTenantResetsWhenCallerContextIsCancelled(t *testing.T) {
	sess := &fakeSession{tx: &fakeTx{}}
	db := newFakeDB(sess, nil)
	ctx, cancel := context.WithCancel(context.Background())

	err := db.WithTenant(ctx, tenant.SpaceForKey("acme"), func(tx pgx.Tx) error {
		cancel()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{`"acme", "public"`, `"public"`}, sess.paths)
}

func TestWithTenantRejectsInvalidSchema(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("must not acquire")}
	db := newTenantDB(sessions, "", nil)

	err := db.WithTenant(context.Background(), tenant.Space{Key: "x", SchemaName: `x"; DROP`}, func(tx pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "bind tenant")
}

func TestWithTenantAcquireFailure(t *testing.T) {
	db := newTenantDB(&fakeSessions{err: errors.New("pool closed")}, "", nil)

	err := db.WithTenant(context.Background(), tenant.SpaceForKey("acme"), func(tx pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "acquire conn")
}

func TestNewTenantDBRequiresPool(t *testing.T) {
	require.Panics(t, func() { NewTenantDB(TenantDBConfig{}) })
}
