package persistence

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zenGate-Global/appraisal-saas/platform/go/catalog"
	"github.com/zenGate-Global/appraisal-saas/platform/go/tenant"
)

var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrUnboundEntity = errors.New("entity not bound to a schema")
)

// ModelRegistry records which schema each catalog entity is bound to while tables are being
// created. It is owned by a single provisioning run; request-time reads never consult it and
// take the schema from the resolved tenant instead.
type ModelRegistry struct {
	mu       sync.RWMutex
	catalog  *catalog.Catalog
	bindings map[string]string
}

func NewModelRegistry(c *catalog.Catalog) *ModelRegistry {
	if c == nil {
		panic("ModelRegistry requires catalog")
	}
	return &ModelRegistry{catalog: c, bindings: make(map[string]string)}
}

// Bind points entity at schema, replacing any previous binding.
func (r *ModelRegistry) Bind(entity, schema string) error {
	if _, ok := r.catalog.Lookup(entity); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	if err := tenant.ValidateSchemaName(schema); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[entity] = schema
	return nil
}

// BindAll points every catalog entity at schema.
func (r *ModelRegistry) BindAll(schema string) error {
	if err := tenant.ValidateSchemaName(schema); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.catalog.Names() {
		r.bindings[name] = schema
	}
	return nil
}

// CurrentSchema returns the schema entity is bound to.
func (r *ModelRegistry) CurrentSchema(entity string) (string, error) {
	if _, ok := r.catalog.Lookup(entity); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.bindings[entity]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnboundEntity, entity)
	}
	return schema, nil
}

// QualifiedTable returns the sanitized "schema"."table" for entity. Its signature matches
// catalog.TableResolver so it can drive DDL generation directly.
func (r *ModelRegistry) QualifiedTable(entity string) (string, error) {
	schema, err := r.CurrentSchema(entity)
	if err != nil {
		return "", err
	}
	e, _ := r.catalog.Lookup(entity)
	return e.QualifiedTable(schema), nil
}
