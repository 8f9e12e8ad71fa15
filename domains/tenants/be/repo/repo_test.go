package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/appraisal-saas/domains/tenants/be/service"
	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence"
	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence/pgtest"
)

func organization(domain string, created time.Time) service.Organization {
	return service.Organization{
		ID:               uuid.New(),
		Name:             "Org " + domain,
		Email:            "admin@" + domain + ".org",
		Country:          "Ghana",
		Type:             "NGO",
		EmployeeRange:    "1-10",
		DomainName:       domain,
		SchemaName:       domain,
		IsActive:         true,
		SubscriptionPlan: "Basic",
		CreatedDate:      created,
		UpdatedDate:      created,
	}
}

func TestMapConflict(t *testing.T) {
	err := mapConflict(&pgconn.PgError{Code: "23505", ConstraintName: "organizations_domain_name_key"})
	require.ErrorIs(t, err, service.ErrConflict)
	require.EqualError(t, err, "organization already exists: domain_name is already taken")

	require.ErrorIs(t, mapConflict(&pgconn.PgError{Code: "23505", ConstraintName: "other"}), service.ErrConflict)

	other := &pgconn.PgError{Code: "23503"}
	require.Equal(t, error(other), mapConflict(other))
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	older, err := r.Create(ctx, organization("acme", base))
	require.NoError(t, err)
	newer, err := r.Create(ctx, organization("globex", base.Add(time.Hour)))
	require.NoError(t, err)

	_, err = r.Create(ctx, organization("acme", base))
	require.ErrorIs(t, err, service.ErrConflict)

	res, err := r.List(ctx, service.ListOptions{Page: 1, PageSize: 1})
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalItems)
	require.Equal(t, 2, res.TotalPages)
	require.Equal(t, newer.ID, res.Organizations[0].ID)

	res, err = r.List(ctx, service.ListOptions{Page: 5})
	require.NoError(t, err)
	require.Empty(t, res.Organizations)

	at := base.Add(2 * time.Hour)
	marked, err := r.MarkProvisioned(ctx, older.ID, at)
	require.NoError(t, err)
	require.Equal(t, at, *marked.ProvisionedAt)

	_, err = r.Get(ctx, uuid.New())
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestPostgresRepository(t *testing.T) {
	db := pgtest.Start(t)
	ctx := context.Background()
	r := NewPostgresRepository(persistence.NewTenantDB(persistence.TenantDBConfig{Pool: db.Pool, Logger: zaptest.NewLogger(t)}))

	base := time.Now().UTC().Truncate(time.Microsecond)
	acme := organization("acme", base)
	acme.AccessURL = "https://acme.appraisal.app"

	created, err := r.Create(ctx, acme)
	require.NoError(t, err)
	require.Equal(t, acme.ID, created.ID)
	require.Equal(t, "https://acme.appraisal.app", created.AccessURL)
	require.Nil(t, created.ProvisionedAt)

	dup := organization("acme", base)
	dup.Name, dup.Email = "Another", "other@acme.org"
	_, err = r.Create(ctx, dup)
	require.ErrorIs(t, err, service.ErrConflict)
	require.ErrorContains(t, err, "domain_name")

	globex := organization("globex", base.Add(time.Second))
	_, err = r.Create(ctx, globex)
	require.NoError(t, err)

	res, err := r.List(ctx, service.ListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalItems)
	require.Equal(t, globex.ID, res.Organizations[0].ID)

	inactive := false
	res, err = r.List(ctx, service.ListOptions{IsActive: &inactive})
	require.NoError(t, err)
	require.Zero(t, res.TotalItems)

	at := base.Add(time.Minute)
	marked, err := r.MarkProvisioned(ctx, acme.ID, at)
	require.NoError(t, err)
	require.WithinDuration(t, at, *marked.ProvisionedAt, time.Millisecond)

	got, err := r.Get(ctx, acme.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ProvisionedAt)

	_, err = r.Get(ctx, uuid.New())
	require.ErrorIs(t, err, service.ErrNotFound)
	_, err = r.MarkProvisioned(ctx, uuid.New(), at)
	require.ErrorIs(t, err, service.ErrNotFound)
}
