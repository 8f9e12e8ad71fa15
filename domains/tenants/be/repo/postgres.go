package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zenGate-Global/appraisal-saas/domains/tenants/be/service"
	"github.com/zenGate-Global/appraisal-saas/platform/go/persistence"
)

const (
	organizationsTable = "organizations"
	uniqueViolation    = "23505"
)

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	organizationColumns = []string{
		"id", "name", "org_email", "country", "org_type", "is_single_branch", "employee_range",
		"domain_name", "schema_name", "access_url", "is_active", "subscription_plan",
		"provisioned_at", "created_date", "updated_date",
	}

	// conflictFields maps unique constraints of the organizations table onto the input field
	// reported to clients.
	conflictFields = map[string]string{
		"organizations_name_key":        "name",
		"organizations_org_email_key":   "org_email",
		"organizations_domain_name_key": "domain_name",
		"organizations_schema_name_key": "domain_name",
	}
)

type organizationRecord struct {
	ID               uuid.UUID  `db:"id"`
	Name             string     `db:"name"`
	Email            string     `db:"org_email"`
	Country          string     `db:"country"`
	Type             string     `db:"org_type"`
	IsSingleBranch   bool       `db:"is_single_branch"`
	EmployeeRange    string     `db:"employee_range"`
	DomainName       string     `db:"domain_name"`
	SchemaName       string     `db:"schema_name"`
	AccessURL        *string    `db:"access_url"`
	IsActive         bool       `db:"is_active"`
	SubscriptionPlan string     `db:"subscription_plan"`
	ProvisionedAt    *time.Time `db:"provisioned_at"`
	CreatedDate      time.Time  `db:"created_date"`
	UpdatedDate      time.Time  `db:"updated_date"`
}

// PostgresRepository keeps the organization registry in the platform schema. Every statement
// runs through TenantDB.WithPlatform so the session is bound to the platform search_path.
type PostgresRepository struct {
	db    *persistence.TenantDB
	table string
}

// NewPostgresRepository constructs a repository backed by TenantDB.
func NewPostgresRepository(db *persistence.TenantDB) *PostgresRepository {
	if db == nil {
		panic("tenant db is required")
	}
	return &PostgresRepository{
		db:    db,
		table: pgx.Identifier{db.PlatformSchema(), organizationsTable}.Sanitize(),
	}
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	page, size := normalizePaging(opts.Page, opts.PageSize)

	where := sq.And{sq.Eq{"is_deleted": false}}
	if opts.IsActive != nil {
		where = append(where, sq.Eq{"is_active": *opts.IsActive})
	}

	countSQL, countArgs, err := psql.Select("count(*)").From(r.table).Where(where).ToSql()
	if err != nil {
		return service.ListResult{}, fmt.Errorf("build count: %w", err)
	}
	listSQL, listArgs, err := psql.Select(organizationColumns...).
		From(r.table).
		Where(where).
		OrderBy("created_date DESC", "id").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return service.ListResult{}, fmt.Errorf("build list: %w", err)
	}

	var (
		total   int
		records []organizationRecord
	)
	err = r.db.WithPlatform(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return fmt.Errorf("count organizations: %w", err)
		}
		rows, err := tx.Query(ctx, listSQL, listArgs...)
		if err != nil {
			return fmt.Errorf("list organizations: %w", err)
		}
		records, err = pgx.CollectRows(rows, pgx.RowToStructByName[organizationRecord])
		return err
	})
	if err != nil {
		return service.ListResult{}, err
	}

	orgs := make([]service.Organization, 0, len(records))
	for _, rec := range records {
		orgs = append(orgs, toServiceOrganization(rec))
	}
	return service.ListResult{
		Organizations: orgs,
		Page:          page,
		PageSize:      size,
		TotalItems:    total,
		TotalPages:    (total + size - 1) / size,
	}, nil
}

func (r *PostgresRepository) Create(ctx context.Context, o service.Organization) (service.Organization, error) {
	rec := toRecord(o)
	sqlText, args, err := psql.Insert(r.table).
		Columns(organizationColumns...).
		Values(
			rec.ID, rec.Name, rec.Email, rec.Country, rec.Type, rec.IsSingleBranch, rec.EmployeeRange,
			rec.DomainName, rec.SchemaName, rec.AccessURL, rec.IsActive, rec.SubscriptionPlan,
			rec.ProvisionedAt, rec.CreatedDate, rec.UpdatedDate,
		).
		Suffix(returningColumns()).
		ToSql()
	if err != nil {
		return service.Organization{}, fmt.Errorf("build insert: %w", err)
	}

	out, err := r.one(ctx, sqlText, args)
	if err != nil {
		return service.Organization{}, mapConflict(err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Organization, error) {
	sqlText, args, err := psql.Select(organizationColumns...).
		From(r.table).
		Where(sq.Eq{"id": id, "is_deleted": false}).
		ToSql()
	if err != nil {
		return service.Organization{}, fmt.Errorf("build select: %w", err)
	}
	out, err := r.one(ctx, sqlText, args)
	if err != nil {
		return service.Organization{}, mapNotFound(err)
	}
	return out, nil
}

func (r *PostgresRepository) MarkProvisioned(ctx context.Context, id uuid.UUID, at time.Time) (service.Organization, error) {
	sqlText, args, err := psql.Update(r.table).
		Set("provisioned_at", at).
		Set("updated_date", at).
		Where(sq.Eq{"id": id, "is_deleted": false}).
		Suffix(returningColumns()).
		ToSql()
	if err != nil {
		return service.Organization{}, fmt.Errorf("build update: %w", err)
	}
	out, err := r.one(ctx, sqlText, args)
	if err != nil {
		return service.Organization{}, mapNotFound(err)
	}
	return out, nil
}

func (r *PostgresRepository) one(ctx context.Context, sqlText string, args []any) (service.Organization, error) {
	var rec organizationRecord
	err := r.db.WithPlatform(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		rec, err = pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[organizationRecord])
		return err
	})
	if err != nil {
		return service.Organization{}, err
	}
	return toServiceOrganization(rec), nil
}

func returningColumns() string {
	return "RETURNING " + strings.Join(organizationColumns, ", ")
}

func toRecord(o service.Organization) organizationRecord {
	rec := organizationRecord{
		ID:               o.ID,
		Name:             o.Name,
		Email:            o.Email,
		Country:          o.Country,
		Type:             o.Type,
		IsSingleBranch:   o.IsSingleBranch,
		EmployeeRange:    o.EmployeeRange,
		DomainName:       o.DomainName,
		SchemaName:       o.SchemaName,
		IsActive:         o.IsActive,
		SubscriptionPlan: o.SubscriptionPlan,
		ProvisionedAt:    o.ProvisionedAt,
		CreatedDate:      o.CreatedDate,
		UpdatedDate:      o.UpdatedDate,
	}
	if o.AccessURL != "" {
		rec.AccessURL = &o.AccessURL
	}
	return rec
}

func toServiceOrganization(rec organizationRecord) service.Organization {
	o := service.Organization{
		ID:               rec.ID,
		Name:             rec.Name,
		Email:            rec.Email,
		Country:          rec.Country,
		Type:             rec.Type,
		IsSingleBranch:   rec.IsSingleBranch,
		EmployeeRange:    rec.EmployeeRange,
		DomainName:       rec.DomainName,
		SchemaName:       rec.SchemaName,
		IsActive:         rec.IsActive,
		SubscriptionPlan: rec.SubscriptionPlan,
		ProvisionedAt:    rec.ProvisionedAt,
		CreatedDate:      rec.CreatedDate,
		UpdatedDate:      rec.UpdatedDate,
	}
	if rec.AccessURL != nil {
		o.AccessURL = *rec.AccessURL
	}
	return o
}

func normalizePaging(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return page, size
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return service.ErrNotFound
	}
	return err
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if field, ok := conflictFields[pgErr.ConstraintName]; ok {
			return fmt.Errorf("%w: %s is already taken", service.ErrConflict, field)
		}
		return service.ErrConflict
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
