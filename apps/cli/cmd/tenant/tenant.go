package tenantcmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/appraisal-saas/domains/tenants/be/provisioning"
	"github.com/zenGate-Global/appraisal-saas/domains/tenants/be/repo"
	"github.com/zenGate-Global/appraisal-saas/domains/tenants/be/service"
	"github.com/zenGate-Global/appraisal-saas/platform/go/catalog"
	platformlogging "github.com/zenGate-Global/appraisal-saas/platform/go/logging"
	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence"
	"github.com/zenGate-Global/appraisal-saas/platform/go/requesttrace"
)

// Command groups tenant-related helpers.
func Command() *cobra.Command {
	var (
		databaseURL string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (create/provision/check)",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	open := func(ctx context.Context) (*env, error) {
		return openEnv(ctx, databaseURL, logLevel)
	}

	cmd.AddCommand(createCommand(open), provisionCommand(open), checkCommand(open))
	return cmd
}

// env holds what every tenant subcommand needs; close releases it.
type env struct {
	db          *persistence.TenantDB
	provisioner *provisioning.DBProvisioner
	logger      *zap.Logger
	close       func()
}

func openEnv(ctx context.Context, databaseURL, logLevel string) (*env, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: logLevel, Format: "console"})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL, MaxConns: 2})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}

	db := persistence.NewTenantDB(persistence.TenantDBConfig{Pool: pool, Logger: logger})
	return &env{
		db:          db,
		provisioner: provisioning.NewDBProvisioner(db, catalog.Tenant(), logger),
		logger:      logger,
		close: func() {
			persistence.ClosePool(pool)
			_ = logger.Sync()
		},
	}, nil
}

// systemContext marks CLI work as system actions in provisioning logs.
func systemContext(ctx context.Context) context.Context {
	return requesttrace.IntoContext(ctx, requesttrace.System("cli-"+uuid.NewString()))
}

func createCommand(open func(context.Context) (*env, error)) *cobra.Command {
	var (
		in         service.CreateInput
		baseDomain string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Register an organization and provision its tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := systemContext(cmd.Context())
			e, err := open(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			svc := service.NewWithProvisioning(repo.NewPostgresRepository(e.db), baseDomain, service.ProvisioningDeps{
				DB:     e.provisioner,
				Logger: e.logger,
			})
			org, err := svc.Create(ctx, in)
			if err != nil {
				return fmt.Errorf("create organization: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Organization %s (%s) ready in schema %s\n", org.Name, org.ID, org.SchemaName)
			return nil
		},
	}

	c.Flags().StringVar(&in.Name, "name", "", "Organization name")
	c.Flags().StringVar(&in.Email, "email", "", "Organization contact email")
	c.Flags().StringVar(&in.Country, "country", "", "Country")
	c.Flags().StringVar(&in.Type, "type", "Private", "Organization type ("+strings.Join(catalog.OrganizationTypes, ", ")+")")
	c.Flags().BoolVar(&in.IsSingleBranch, "single-branch", false, "Organization has a single branch")
	c.Flags().StringVar(&in.EmployeeRange, "employee-range", "", "Employee range, e.g. 10-50")
	c.Flags().StringVar(&in.DomainName, "domain", "", "Subdomain label; also names the tenant schema")
	c.Flags().StringVar(&in.SubscriptionPlan, "plan", "", "Subscription plan (defaults to Basic)")
	c.Flags().StringVar(&baseDomain, "base-domain", os.Getenv("TENANT_BASE_DOMAIN"), "Base domain used to build the access URL")

	for _, name := range []string{"name", "email", "country", "employee-range", "domain"} {
		_ = c.MarkFlagRequired(name)
	}
	return c
}

func provisionCommand(open func(context.Context) (*env, error)) *cobra.Command {
	var schema string

	c := &cobra.Command{
		Use:   "provision",
		Short: "Create a tenant schema and every tenant table (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := systemContext(cmd.Context())
			e, err := open(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.provisioner.ProvisionTenant(ctx, schema); err != nil {
				return fmt.Errorf("provision %s: %w", schema, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema %s provisioned (%d tables)\n", schema, len(catalog.Tenant().Names()))
			return nil
		},
	}
	c.Flags().StringVar(&schema, "schema", "", "Tenant schema name")
	_ = c.MarkFlagRequired("schema")
	return c
}

func checkCommand(open func(context.Context) (*env, error)) *cobra.Command {
	var schema string

	c := &cobra.Command{
		Use:   "check",
		Short: "Report whether a tenant schema has every tenant table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := systemContext(cmd.Context())
			e, err := open(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.provisioner.Check(ctx, service.DBProvisionRequest{SchemaName: schema})
			if err != nil {
				return fmt.Errorf("check %s: %w", schema, err)
			}
			if res.Ready {
				fmt.Fprintf(cmd.OutOrStdout(), "Schema %s is ready\n", schema)
				return nil
			}
			return fmt.Errorf("schema %s is missing tables: %s", schema, strings.Join(res.MissingTables, ", "))
		},
	}
	c.Flags().StringVar(&schema, "schema", "", "Tenant schema name")
	_ = c.MarkFlagRequired("schema")
	return c
}
