package repo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/zenGate-Global/appraisal-saas/domains/tenants/be/provisioning"
	"github.com/zenGate-Global/appraisal-saas/platform/go/catalog"
	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence"
	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence/pgtest"
	"github.com/zenGate-Global/appraisal-saas/platform/go/problem"
	"github.com/zenGate-Global/appraisal-saas/platform/go/query"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

const departmentsPerTenant = 7

func setup(t *testing.T) (*PostgresRepository, *pgxpool.Pool) {
	t.Helper()
	db := pgtest.Start(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	tdb := persistence.NewTenantDB(persistence.TenantDBConfig{Pool: db.Pool, Logger: logger})
	prov := provisioning.NewDBProvisioner(tdb, catalog.Tenant(), logger)

	for _, schema := range []string{"acme", "globex"} {
		require.NoError(t, prov.ProvisionTenant(ctx, schema))
		for i := range departmentsPerTenant {
			_, err := db.Pool.Exec(ctx, fmt.Sprintf(
				`INSERT INTO %s.departments (name, form_fields, created_date) VALUES ($1, '{}', $2::timestamptz)`, schema),
				fmt.Sprintf("%s-dept-%d", schema, i),
				fmt.Sprintf("2024-01-0%dT00:00:00Z", i+1),
			)
			require.NoError(t, err)
		}
	}

	return NewPostgresRepository(tdb, query.NewEngine(catalog.Tenant(), logger)), db.Pool
}

func parse(t *testing.T, raw string) query.Request {
	t.Helper()
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	req, err := query.Parse(values)
	require.NoError(t, err)
	return req
}

func names(page query.Page) []string {
	out := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		out = append(out, item["name"].(string))
	}
	return out
}

func TestReadAgainstPostgres(t *testing.T) {
	r, pool := setup(t)
	ctx := context.Background()
	acme := tenant.SpaceForKey("acme")
	departments, _ := catalog.Tenant().Lookup("departments")

	t.Run("page count matches offset and limit", func(t *testing.T) {
		for offset := 0; offset <= departmentsPerTenant+2; offset++ {
			page, err := r.Read(ctx, acme, departments, parse(t, fmt.Sprintf("offset=%d&limit=3", offset)), query.Options{})
			require.NoError(t, err)
			require.EqualValues(t, departmentsPerTenant, page.TotalCount)
			require.Equal(t, min(3, max(0, departmentsPerTenant-offset)), page.PageCount, "offset %d", offset)
			require.Len(t, page.Items, page.PageCount)
		}
	})

	t.Run("temporal range intersection", func(t *testing.T) {
		page, err := r.Read(ctx, acme, departments,
			parse(t, "created_date=gte:2024-01-03T00:00:00&created_date=lte:2024-01-05T00:00:00&sort=created_date"), query.Options{})
		require.NoError(t, err)
		require.Equal(t, []string{"acme-dept-2", "acme-dept-3", "acme-dept-4"}, names(page))

		page, err = r.Read(ctx, acme, departments, parse(t, "created_date=gte:2024-01-06T00:00:00"), query.Options{})
		require.NoError(t, err)
		require.EqualValues(t, 2, page.TotalCount)
	})

	t.Run("default order is newest first", func(t *testing.T) {
		page, err := r.Read(ctx, acme, departments, parse(t, "limit=2"), query.Options{})
		require.NoError(t, err)
		require.Equal(t, []string{"acme-dept-6", "acme-dept-5"}, names(page))
	})

	t.Run("search is a conjunction of the pair and term groups", func(t *testing.T) {
		_, err := pool.Exec(ctx, `
			INSERT INTO acme.appraisal_templates (name, org_type) VALUES
				('Smith quarterly', 'Public'),
				('Smith quarterly', 'Private'),
				('Annual review', 'Public')`)
		require.NoError(t, err)
		templates, _ := catalog.Tenant().Lookup("appraisal_templates")

		page, err := r.Read(ctx, acme, templates, parse(t, "q=org_type:Public&q=smith"), query.Options{})
		require.NoError(t, err)
		require.EqualValues(t, 1, page.TotalCount)
		require.Equal(t, "Public", page.Items[0]["org_type"])
	})

	t.Run("related rows through a link table", func(t *testing.T) {
		var roleID string
		require.NoError(t, pool.QueryRow(ctx, `INSERT INTO acme.roles (name) VALUES ('admin') RETURNING id::text`).Scan(&roleID))
		_, err := pool.Exec(ctx, `
			WITH p AS (INSERT INTO acme.permissions (name) VALUES ('read'), ('write') RETURNING id)
			INSERT INTO acme.role_permissions (role_id, permission_id) SELECT $1::uuid, id FROM p`, roleID)
		require.NoError(t, err)
		roles, _ := catalog.Tenant().Lookup("roles")

		page, err := r.Read(ctx, acme, roles, parse(t, "sort=name"), query.Options{Related: "permissions", ResourceID: roleID})
		require.NoError(t, err)
		require.Equal(t, []string{"read", "write"}, names(page))

		row, err := r.Get(ctx, acme, roles, roleID, []string{"id", "name"})
		require.NoError(t, err)
		require.Equal(t, roleID, row["id"])
		require.Equal(t, "admin", row["name"])
	})

	t.Run("missing row and bad column", func(t *testing.T) {
		_, err := r.Get(ctx, acme, departments, "2b1f8a3f-0c11-4d7e-9a51-6b0f6c0e8d1a", nil)
		require.Equal(t, problem.KindNotFound, problem.KindOf(err))

		_, err = r.Read(ctx, acme, departments, parse(t, "salary=1"), query.Options{})
		require.Equal(t, problem.KindBadRequest, problem.KindOf(err))
	})

	t.Run("unprovisioned tenant is an internal error", func(t *testing.T) {
		_, err := r.Read(ctx, tenant.SpaceForKey("initech"), departments, query.NewRequest(), query.Options{})
		require.Equal(t, problem.KindInternal, problem.KindOf(err))
		require.Equal(t, problem.GenericMessage, problem.FromError(err).Detail)
	})
}

func TestConcurrentReadsNeverCrossTenants(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()
	departments, _ := catalog.Tenant().Lookup("departments")

	g, gctx := errgroup.WithContext(ctx)
	for i := range 64 {
		key := "acme"
		if i%2 == 1 {
			key = "globex"
		}
		g.Go(func() error {
			page, err := r.Read(gctx, tenant.SpaceForKey(key), departments, query.NewRequest(), query.Options{})
			if err != nil {
				return err
			}
			if page.TotalCount != departmentsPerTenant {
				return fmt.Errorf("%s: total %d", key, page.TotalCount)
			}
			for _, name := range names(page) {
				if !strings.HasPrefix(name, key+"-") {
					return fmt.Errorf("%s read %s", key, name)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
