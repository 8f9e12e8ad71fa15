package repo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/appraisal-saas/domains/records/be/service"
	"github.com/zenGate-Global/appraisal-saas/platform/go/catalog"
	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence"
	"github.com/zenGate-Global/appraisal-saas/platform/go/problem"
	"github.com/zenGate-Global/appraisal-saas/platform/go/query"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

// PostgresRepository runs engine reads on a connection bound to the tenant's search_path. The
// engine also qualifies every table with the same schema, so the statement never depends on
// what a previous user left on the pooled connection.
type PostgresRepository struct {
	db     *persistence.TenantDB
	engine *query.Engine
}

func NewPostgresRepository(db *persistence.TenantDB, engine *query.Engine) *PostgresRepository {
	if db == nil {
		panic("tenant db is required")
	}
	if engine == nil {
		panic("query engine is required")
	}
	return &PostgresRepository{db: db, engine: engine}
}

func (r *PostgresRepository) Read(ctx context.Context, space tenant.Space, entity catalog.Entity, req query.Request, opts query.Options) (query.Page, error) {
	var page query.Page
	err := r.db.WithTenant(ctx, space, func(tx pgx.Tx) error {
		var err error
		page, err = r.engine.Read(ctx, tx, space.SchemaName, entity, req, opts)
		return err
	})
	if err != nil {
		return query.Page{}, classified(err)
	}
	return page, nil
}

func (r *PostgresRepository) Get(ctx context.Context, space tenant.Space, entity catalog.Entity, id string, fields []string) (service.Row, error) {
	var row service.Row
	err := r.db.WithTenant(ctx, space, func(tx pgx.Tx) error {
		var err error
		row, err = r.engine.Get(ctx, tx, space.SchemaName, entity, id, fields)
		return err
	})
	if err != nil {
		return nil, classified(err)
	}
	return row, nil
}

// classified keeps engine errors as they are and hides binder failures behind Internal.
func classified(err error) error {
	return problem.As(err)
}

var _ service.Repository = (*PostgresRepository)(nil)
