package service

import (
	"context"

	"github.com/zenGate-Global/appraisal-saas/platform/go/catalog"
	"github.com/zenGate-Global/appraisal-saas/platform/go/problem"
	"github.com/zenGate-Global/appraisal-saas/platform/go/query"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

// Row is one record rendered as column name to value.
type Row = map[string]any

// Repository runs reads against one tenant schema. The schema comes from the Space argument
// on every call.
type Repository interface {
	Read(ctx context.Context, space tenant.Space, entity catalog.Entity, req query.Request, opts query.Options) (query.Page, error)
	Get(ctx context.Context, space tenant.Space, entity catalog.Entity, id string, fields []string) (Row, error)
}

// Order is an explicit ORDER BY taking precedence over the request's sort keys.
type Order struct {
	Column    string
	Direction query.Direction
}

// Service defines the read operations over tenant-scoped resources.
type Service interface {
	List(ctx context.Context, space tenant.Space, resource string, req query.Request, order Order) (query.Page, error)
	Get(ctx context.Context, space tenant.Space, resource, id string, fields []string) (Row, error)
	Related(ctx context.Context, space tenant.Space, resource, id, relation string, req query.Request, order Order) (query.Page, error)
}

type service struct {
	repo    Repository
	catalog *catalog.Catalog
}

// New constructs the records service over the entities of c.
func New(repo Repository, c *catalog.Catalog) Service {
	if repo == nil {
		panic("records repo is required")
	}
	if c == nil {
		panic("catalog is required")
	}
	return &service{repo: repo, catalog: c}
}

func (s *service) List(ctx context.Context, space tenant.Space, resource string, req query.Request, order Order) (query.Page, error) {
	entity, err := s.entity(space, resource)
	if err != nil {
		return query.Page{}, err
	}

	opts := order.options()
	if len(req.Relations) > 0 {
		joins, err := relationJoins(entity, req.Relations)
		if err != nil {
			return query.Page{}, err
		}
		opts.Joins = joins
		req.Relations = nil
	}
	return s.repo.Read(ctx, space, entity, req, opts)
}

func (s *service) Get(ctx context.Context, space tenant.Space, resource, id string, fields []string) (Row, error) {
	entity, err := s.entity(space, resource)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, space, entity, id, fields)
}

func (s *service) Related(ctx context.Context, space tenant.Space, resource, id, relation string, req query.Request, order Order) (query.Page, error) {
	entity, err := s.entity(space, resource)
	if err != nil {
		return query.Page{}, err
	}
	if len(req.Relations) > 0 {
		r := req.Relations[0]
		return query.Page{}, problem.BadRequest("Invalid filter column: %s.%s", r.Relation, r.Column)
	}

	opts := order.options()
	opts.Related = relation
	opts.ResourceID = id
	return s.repo.Read(ctx, space, entity, req, opts)
}

// entity resolves resource for a tenant. Tenant tables do not exist in the platform schema, so
// the default space has no resources.
func (s *service) entity(space tenant.Space, resource string) (catalog.Entity, error) {
	if space.IsDefault() {
		return catalog.Entity{}, problem.NotFound("Resource not found")
	}
	entity, ok := s.catalog.Lookup(resource)
	if !ok {
		return catalog.Entity{}, problem.NotFound("Resource %q not found", resource)
	}
	return entity, nil
}

func (o Order) options() query.Options {
	return query.Options{OrderBy: o.Column, OrderDirection: o.Direction}
}

// relationJoins groups dotted relation.column filters into one join target per relation, in
// the order the relations first appear.
func relationJoins(entity catalog.Entity, filters []query.RelationFilter) (*query.Joins, error) {
	joins := &query.Joins{}
	index := map[string]int{}
	for _, f := range filters {
		if _, ok := entity.Relation(f.Relation); !ok {
			return nil, problem.BadRequest("%s is not a valid relation", f.Relation)
		}
		i, ok := index[f.Relation]
		if !ok {
			i = len(joins.Targets)
			index[f.Relation] = i
			joins.Targets = append(joins.Targets, query.JoinTarget{Relation: f.Relation, Filters: map[string][]string{}})
		}
		target := joins.Targets[i]
		target.Filters[f.Column] = append(target.Filters[f.Column], f.Values...)
	}
	return joins, nil
}
