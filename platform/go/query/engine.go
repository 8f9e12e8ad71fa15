package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/appraisal-saas/platform/go/catalog"
	platformlogging "github.com/zenGate-Global/appraisal-saas/platform/go/logging"
	"github.com/zenGate-Global/appraisal-saas/platform/go/problem"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

const baseAlias = "base"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Querier is the subset of pgx.Tx the engine needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Direction is an explicit ORDER BY direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Joins selects root rows joined with each target relation in order, with equality filters on
// the root and on every target.
type Joins struct {
	Filters map[string][]string
	Targets []JoinTarget
}

type JoinTarget struct {
	Relation string
	Filters  map[string][]string
}

// Options selects the base statement and an explicit ordering.
type Options struct {
	// Related names a relation of the root entity; rows of the relation's target are returned
	// for the root row ResourceID.
	Related    string
	ResourceID string
	Joins      *Joins
	OrderBy    string
	// OrderDirection applies to OrderBy; empty means ascending.
	OrderDirection Direction
}

// Page is one window of results with the total number of matching rows.
type Page struct {
	TotalCount int64            `json:"total_count"`
	PageCount  int              `json:"page_count"`
	Items      []map[string]any `json:"items"`
}

// Engine builds and runs list queries for catalog entities. The schema is always a parameter;
// the engine keeps no per-tenant state.
type Engine struct {
	catalog *catalog.Catalog
	logger  *zap.Logger
}

func NewEngine(c *catalog.Catalog, logger *zap.Logger) *Engine {
	if c == nil {
		panic("query engine requires catalog")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{catalog: c, logger: logger}
}

// Read runs the filtered, ordered, paginated query described by req against schema and returns
// the page with its total count. Client mistakes surface as problem.KindBadRequest; everything
// else is logged and returned as problem.KindInternal with the generic message.
func (e *Engine) Read(ctx context.Context, db Querier, schema string, entity catalog.Entity, req Request, opts Options) (Page, error) {
	if err := tenant.ValidateSchemaName(schema); err != nil {
		return Page{}, e.internal(ctx, schema, entity, "bind schema", err)
	}
	stmt, err := e.build(schema, entity, req, opts)
	if err != nil {
		return Page{}, err
	}

	countSQL, countArgs, err := stmt.count().ToSql()
	if err != nil {
		return Page{}, e.internal(ctx, schema, stmt.entity, "build count", err)
	}
	pageSQL, pageArgs, err := stmt.page().ToSql()
	if err != nil {
		return Page{}, e.internal(ctx, schema, stmt.entity, "build select", err)
	}

	var total int64
	if err := db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return Page{}, e.internal(ctx, schema, stmt.entity, "count rows", err)
	}

	rows, err := db.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return Page{}, e.internal(ctx, schema, stmt.entity, "select rows", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return Page{}, e.internal(ctx, schema, stmt.entity, "scan rows", err)
	}

	page := Page{TotalCount: total, Items: make([]map[string]any, 0, len(items))}
	for _, item := range items {
		page.Items = append(page.Items, normalizeRow(item))
	}
	page.PageCount = len(page.Items)
	return page, nil
}

// Get returns the row of entity whose primary key is id.
func (e *Engine) Get(ctx context.Context, db Querier, schema string, entity catalog.Entity, id string, fields []string) (map[string]any, error) {
	if err := tenant.ValidateSchemaName(schema); err != nil {
		return nil, e.internal(ctx, schema, entity, "bind schema", err)
	}
	pk, err := singleKey(entity)
	if err != nil {
		return nil, err
	}
	key, err := parseValue(pk, id)
	if err != nil {
		return nil, err
	}
	columns, err := projection(entity, fields)
	if err != nil {
		return nil, err
	}

	sqlText, args, err := psql.Select(columns...).
		From(entity.QualifiedTable(schema) + " AS " + baseAlias).
		Where(sq.Eq{qualify(baseAlias, pk.Name): key}).
		ToSql()
	if err != nil {
		return nil, e.internal(ctx, schema, entity, "build select", err)
	}

	rows, err := db.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, e.internal(ctx, schema, entity, "select row", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, problem.NotFound("%s not found", entity.Label)
		}
		return nil, e.internal(ctx, schema, entity, "scan row", err)
	}
	return normalizeRow(row), nil
}

// statement holds the FROM, JOIN and WHERE parts shared by the page and count queries.
type statement struct {
	entity  catalog.Entity
	from    string
	joins   []string
	where   []sq.Sqlizer
	columns []string
	orderBy []string
	offset  uint64
	limit   uint64
}

func (s *statement) scoped(b sq.SelectBuilder) sq.SelectBuilder {
	b = b.From(s.from)
	for _, j := range s.joins {
		b = b.Join(j)
	}
	for _, w := range s.where {
		b = b.Where(w)
	}
	return b
}

func (s *statement) page() sq.SelectBuilder {
	return s.scoped(psql.Select(s.columns...)).
		OrderBy(s.orderBy...).
		Offset(s.offset).
		Limit(s.limit)
}

func (s *statement) count() sq.SelectBuilder {
	return s.scoped(psql.Select("COUNT(*)"))
}

func (e *Engine) build(schema string, root catalog.Entity, req Request, opts Options) (*statement, error) {
	stmt, err := e.base(schema, root, opts)
	if err != nil {
		return nil, err
	}
	target := stmt.entity

	if stmt.columns, err = projection(target, req.Fields); err != nil {
		return nil, err
	}

	for _, key := range req.FilterKeys() {
		col, ok := target.Column(key)
		if !ok || !col.Type.Filterable() {
			return nil, problem.BadRequest("Invalid filter column: %s", key)
		}
		pred, err := columnFilter(baseAlias, col, req.Filters[key])
		if err != nil {
			return nil, err
		}
		stmt.where = append(stmt.where, pred)
	}

	if len(req.Relations) > 0 {
		return nil, problem.BadRequest("Invalid filter column: %s.%s", req.Relations[0].Relation, req.Relations[0].Column)
	}

	search, err := searchFilter(target, req.Search)
	if err != nil {
		return nil, err
	}
	stmt.where = append(stmt.where, search...)

	if stmt.orderBy, err = ordering(target, req.Sort, opts); err != nil {
		return nil, err
	}

	stmt.offset = uint64(req.Offset)
	stmt.limit = uint64(req.Limit)
	return stmt, nil
}

// base resolves the selectable: a relation of root, root joined with targets, or root alone.
func (e *Engine) base(schema string, root catalog.Entity, opts Options) (*statement, error) {
	switch {
	case opts.Related != "":
		return e.related(schema, root, opts.Related, opts.ResourceID)
	case opts.Joins != nil:
		return e.joined(schema, root, *opts.Joins)
	default:
		return &statement{entity: root, from: root.QualifiedTable(schema) + " AS " + baseAlias}, nil
	}
}

func (e *Engine) related(schema string, root catalog.Entity, name, resourceID string) (*statement, error) {
	rel, ok := root.Relation(name)
	if !ok {
		return nil, problem.BadRequest("%s is not a valid relation", name)
	}
	target, ok := e.catalog.Lookup(rel.Target)
	if !ok {
		return nil, problem.Internal(fmt.Errorf("relation %s.%s targets unknown entity %q", root.Name, name, rel.Target))
	}
	pk, err := singleKey(root)
	if err != nil {
		return nil, err
	}
	id, err := parseValue(pk, resourceID)
	if err != nil {
		return nil, err
	}

	stmt := &statement{entity: target, from: target.QualifiedTable(schema) + " AS " + baseAlias}
	if rel.Through == "" {
		stmt.joins = append(stmt.joins, fmt.Sprintf("%s AS root ON %s = %s",
			root.QualifiedTable(schema), qualify("root", rel.LocalColumn), qualify(baseAlias, rel.RemoteColumn)))
	} else {
		link, ok := e.catalog.Lookup(rel.Through)
		if !ok {
			return nil, problem.Internal(fmt.Errorf("relation %s.%s uses unknown link %q", root.Name, name, rel.Through))
		}
		stmt.joins = append(stmt.joins,
			fmt.Sprintf("%s AS link ON %s = %s",
				link.QualifiedTable(schema), qualify("link", rel.ThroughRemote), qualify(baseAlias, rel.RemoteColumn)),
			fmt.Sprintf("%s AS root ON %s = %s",
				root.QualifiedTable(schema), qualify("root", rel.LocalColumn), qualify("link", rel.ThroughLocal)),
		)
	}
	stmt.where = append(stmt.where, sq.Eq{qualify("root", pk.Name): id})
	return stmt, nil
}

func (e *Engine) joined(schema string, root catalog.Entity, joins Joins) (*statement, error) {
	stmt := &statement{entity: root, from: root.QualifiedTable(schema) + " AS " + baseAlias}

	preds, err := equalityFilters(root, baseAlias, joins.Filters)
	if err != nil {
		return nil, err
	}
	stmt.where = append(stmt.where, preds...)

	for i, t := range joins.Targets {
		rel, ok := root.Relation(t.Relation)
		if !ok {
			return nil, problem.BadRequest("%s is not a valid relation", t.Relation)
		}
		target, ok := e.catalog.Lookup(rel.Target)
		if !ok {
			return nil, problem.Internal(fmt.Errorf("relation %s.%s targets unknown entity %q", root.Name, rel.Name, rel.Target))
		}
		alias := fmt.Sprintf("j%d", i)

		if rel.Through == "" {
			stmt.joins = append(stmt.joins, fmt.Sprintf("%s AS %s ON %s = %s",
				target.QualifiedTable(schema), alias, qualify(baseAlias, rel.LocalColumn), qualify(alias, rel.RemoteColumn)))
		} else {
			link, ok := e.catalog.Lookup(rel.Through)
			if !ok {
				return nil, problem.Internal(fmt.Errorf("relation %s.%s uses unknown link %q", root.Name, rel.Name, rel.Through))
			}
			linkAlias := fmt.Sprintf("l%d", i)
			stmt.joins = append(stmt.joins,
				fmt.Sprintf("%s AS %s ON %s = %s",
					link.QualifiedTable(schema), linkAlias, qualify(linkAlias, rel.ThroughLocal), qualify(baseAlias, rel.LocalColumn)),
				fmt.Sprintf("%s AS %s ON %s = %s",
					target.QualifiedTable(schema), alias, qualify(alias, rel.RemoteColumn), qualify(linkAlias, rel.ThroughRemote)),
			)
		}

		preds, err := equalityFilters(target, alias, t.Filters)
		if err != nil {
			return nil, err
		}
		stmt.where = append(stmt.where, preds...)
	}
	return stmt, nil
}

func equalityFilters(entity catalog.Entity, alias string, filters map[string][]string) ([]sq.Sqlizer, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out []sq.Sqlizer
	for _, key := range keys {
		col, ok := entity.Column(key)
		if !ok || !col.Type.Filterable() {
			return nil, problem.BadRequest("Invalid filter column: %s", key)
		}
		pred, err := exactFilter(alias, col, filters[key])
		if err != nil {
			return nil, err
		}
		out = append(out, pred)
	}
	return out, nil
}

// columnFilter dispatches on the column classification.
func columnFilter(alias string, col catalog.Column, values []string) (sq.Sqlizer, error) {
	if col.Type.Kind() == catalog.KindTemporal {
		return temporalFilter(alias, col, values)
	}
	return exactFilter(alias, col, values)
}

// exactFilter matches any of values; "null" adds IS NULL to the alternatives.
func exactFilter(alias string, col catalog.Column, values []string) (sq.Sqlizer, error) {
	name := qualify(alias, col.Name)

	var (
		typed   []any
		hasNull bool
	)
	for _, raw := range values {
		if isNull(col, raw) {
			hasNull = true
			continue
		}
		v, err := parseValue(col, raw)
		if err != nil {
			return nil, err
		}
		typed = append(typed, v)
	}

	var match sq.Sqlizer
	switch len(typed) {
	case 0:
		return sq.Eq{name: nil}, nil
	case 1:
		match = sq.Eq{name: typed[0]}
	default:
		match = sq.Eq{name: typed}
	}
	if hasNull {
		return sq.Or{match, sq.Eq{name: nil}}, nil
	}
	return match, nil
}

// temporalFilter ANDs one comparison per value.
func temporalFilter(alias string, col catalog.Column, values []string) (sq.Sqlizer, error) {
	name := qualify(alias, col.Name)

	preds := make(sq.And, 0, len(values))
	for _, raw := range values {
		if strings.EqualFold(raw, nullLiteral) {
			preds = append(preds, sq.Eq{name: nil})
			continue
		}
		op, value := splitTemporal(raw)
		t, err := parseTemporal(col, value)
		if err != nil {
			return nil, err
		}
		switch op {
		case ">=":
			preds = append(preds, sq.GtOrEq{name: t})
		case "<=":
			preds = append(preds, sq.LtOrEq{name: t})
		case ">":
			preds = append(preds, sq.Gt{name: t})
		case "<":
			preds = append(preds, sq.Lt{name: t})
		default:
			preds = append(preds, sq.Eq{name: t})
		}
	}
	return preds, nil
}

// searchFilter builds the q predicates: field:value pairs form one OR group, bare terms another
// (ILIKE over every searchable column); when both exist the two groups are ANDed.
func searchFilter(entity catalog.Entity, terms []SearchTerm) ([]sq.Sqlizer, error) {
	var (
		pairs sq.Or
		bare  sq.Or
	)
	searchable := entity.SearchableColumns()

	for _, term := range terms {
		if term.IsPair() {
			col, ok := entity.Column(term.Field)
			if !ok || !col.Type.Filterable() {
				return nil, problem.BadRequest("Invalid search column: %s", term.Field)
			}
			pred, err := exactFilter(baseAlias, col, []string{term.Value})
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pred)
			continue
		}

		if len(searchable) == 0 {
			bare = append(bare, sq.Expr("1=0"))
			continue
		}
		pattern := containsPattern(term.Value)
		for _, col := range searchable {
			bare = append(bare, sq.ILike{qualify(baseAlias, col.Name): pattern})
		}
	}

	var out []sq.Sqlizer
	if len(pairs) > 0 {
		out = append(out, pairs)
	}
	if len(bare) > 0 {
		out = append(out, bare)
	}
	return out, nil
}

// ordering resolves ORDER BY: an explicit column wins, then sort keys, then created_date DESC.
// The primary key is appended as a tie-break so pages are stable.
func ordering(entity catalog.Entity, keys []SortKey, opts Options) ([]string, error) {
	var (
		out  []string
		seen = map[string]bool{}
	)
	add := func(column string, desc bool) {
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		out = append(out, qualify(baseAlias, column)+" "+dir)
		seen[column] = true
	}

	switch {
	case opts.OrderBy != "":
		if !entity.HasColumn(opts.OrderBy) {
			return nil, problem.BadRequest("Invalid order_by column: %s", opts.OrderBy)
		}
		switch opts.OrderDirection {
		case "", Asc:
			add(opts.OrderBy, false)
		case Desc:
			add(opts.OrderBy, true)
		default:
			return nil, problem.BadRequest("Invalid order_direction: %s", opts.OrderDirection)
		}
	case len(keys) > 0:
		for _, k := range keys {
			if !entity.HasColumn(k.Column) {
				return nil, problem.BadRequest("Invalid sort column: %s", k.Column)
			}
			add(k.Column, k.Desc)
		}
	case entity.HasColumn("created_date"):
		add("created_date", true)
	}

	for _, pk := range entity.PrimaryKey {
		if !seen[pk] {
			add(pk, false)
		}
	}
	return out, nil
}

func projection(entity catalog.Entity, fields []string) ([]string, error) {
	if len(fields) == 0 {
		return []string{baseAlias + ".*"}, nil
	}
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		if !entity.HasColumn(f) {
			return nil, problem.BadRequest("Invalid fields column: %s", f)
		}
		cols = append(cols, qualify(baseAlias, f))
	}
	return cols, nil
}

func singleKey(entity catalog.Entity) (catalog.Column, error) {
	if len(entity.PrimaryKey) != 1 {
		return catalog.Column{}, problem.BadRequest("%s has no single identifier", entity.Label)
	}
	col, _ := entity.Column(entity.PrimaryKey[0])
	return col, nil
}

func qualify(alias, column string) string {
	return alias + "." + pgx.Identifier{column}.Sanitize()
}

func (e *Engine) internal(ctx context.Context, schema string, entity catalog.Entity, op string, err error) error {
	platformlogging.FromContextOr(ctx, e.logger).Error("query failed",
		zap.String("operation", op),
		zap.String("schema", schema),
		zap.String("entity", entity.Name),
		zap.Error(err),
	)
	return problem.Internal(fmt.Errorf("%s %s: %w", op, entity.Name, err))
}

// normalizeRow renders driver values that do not encode cleanly as JSON.
func normalizeRow(row map[string]any) map[string]any {
	for k, v := range row {
		if b, ok := v.([16]byte); ok {
			row[k] = uuid.UUID(b).String()
		}
	}
	return row
}
