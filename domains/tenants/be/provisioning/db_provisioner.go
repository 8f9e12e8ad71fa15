package provisioning

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/appraisal-saas/domains/tenants/be/service"
	"github.com/zenGate-Global/appraisal-saas/platform/go/catalog"
	platformlogging "github.com/zenGate-Global/appraisal-saas/platform/go/logging"
	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

// provisionMu serialises provisioning across the process. Two runs never interleave their
// bind-then-create steps, even when they target different schemas.
var provisionMu sync.Mutex

// platformRunner is the part of persistence.TenantDB the provisioner needs.
type platformRunner interface {
	WithPlatform(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// DBProvisioner creates tenant schemas and every table of the tenant catalog inside them.
type DBProvisioner struct {
	db      platformRunner
	catalog *catalog.Catalog
	logger  *zap.Logger
}

func NewDBProvisioner(db *persistence.TenantDB, c *catalog.Catalog, logger *zap.Logger) *DBProvisioner {
	if db == nil {
		panic("db provisioner requires TenantDB")
	}
	return newDBProvisioner(db, c, logger)
}

func newDBProvisioner(db platformRunner, c *catalog.Catalog, logger *zap.Logger) *DBProvisioner {
	if c == nil {
		c = catalog.Tenant()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBProvisioner{db: db, catalog: c, logger: logger}
}

// ProvisionTenant creates schema if absent, binds every tenant entity to it and creates any
// missing table, all in one transaction. Calling it again for an existing schema is a no-op.
func (p *DBProvisioner) ProvisionTenant(ctx context.Context, schema string) error {
	if err := tenant.ValidateSchemaName(schema); err != nil {
		return err
	}
	if schema == tenant.DefaultKey {
		return fmt.Errorf("schema %q is reserved for the platform", schema)
	}

	provisionMu.Lock()
	defer provisionMu.Unlock()

	registry := persistence.NewModelRegistry(p.catalog)
	if err := registry.BindAll(schema); err != nil {
		return fmt.Errorf("bind models: %w", err)
	}

	logger := platformlogging.FromContextOr(ctx, p.logger).With(zap.String("schema", schema))

	return p.db.WithPlatform(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		for _, entity := range p.catalog.Entities() {
			ddl, err := entity.CreateTableSQL(registry.QualifiedTable)
			if err != nil {
				return fmt.Errorf("render %s: %w", entity.Name, err)
			}
			if _, err := tx.Exec(ctx, ddl); err != nil {
				return fmt.Errorf("create table %s: %w", entity.Name, err)
			}
		}
		logger.Debug("tenant tables ensured", zap.Int("tables", len(p.catalog.Entities())))
		return nil
	})
}

func (p *DBProvisioner) Ensure(ctx context.Context, req service.DBProvisionRequest) (service.DBProvisionResult, error) {
	if err := p.ProvisionTenant(ctx, req.SchemaName); err != nil {
		return service.DBProvisionResult{}, err
	}
	return service.DBProvisionResult{Ready: true}, nil
}

// Check reports whether the schema and every tenant table exist. It never creates anything.
func (p *DBProvisioner) Check(ctx context.Context, req service.DBProvisionRequest) (service.DBProvisionResult, error) {
	if err := tenant.ValidateSchemaName(req.SchemaName); err != nil {
		return service.DBProvisionResult{}, err
	}

	var res service.DBProvisionResult
	err := p.db.WithPlatform(ctx, func(tx pgx.Tx) error {
		var schemaExists bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)", req.SchemaName,
		).Scan(&schemaExists); err != nil {
			return fmt.Errorf("check schema: %w", err)
		}
		if !schemaExists {
			res.MissingTables = p.catalog.Names()
			return nil
		}

		rows, err := tx.Query(ctx, `
			SELECT c.relname
			FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE n.nspname = $1 AND c.relkind IN ('r', 'p')`, req.SchemaName)
		if err != nil {
			return fmt.Errorf("list tables: %w", err)
		}
		existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("scan tables: %w", err)
		}

		present := make(map[string]struct{}, len(existing))
		for _, name := range existing {
			present[name] = struct{}{}
		}
		for _, name := range p.catalog.Names() {
			if _, ok := present[name]; !ok {
				res.MissingTables = append(res.MissingTables, name)
			}
		}
		res.Ready = len(res.MissingTables) == 0
		return nil
	})
	if err != nil {
		return service.DBProvisionResult{}, err
	}
	return res, nil
}

var _ service.DBProvisioner = (*DBProvisioner)(nil)
