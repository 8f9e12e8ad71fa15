// Package catalog holds the static descriptors of every tenant-scoped entity: columns and their
// classification, relations, and the constraints used to generate DDL. Descriptors are built once
// at startup and are read-only afterwards; the schema an entity lives in is always supplied by
// the caller.
package catalog

import (
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ColumnType is the storage type of a column.
type ColumnType int

const (
	String ColumnType = iota + 1
	Enum
	Int
	Bool
	Float
	Timestamp
	Date
	UUID
	JSON
)

func (t ColumnType) String() string {
	switch t {
	case String:
		return "string"
	case Enum:
		return "enum"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Float:
		return "float"
	case Timestamp:
		return "timestamp"
	case Date:
		return "date"
	case UUID:
		return "uuid"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Kind is the filter classification of a column.
type Kind int

const (
	// KindText columns are matched by equality on the raw value.
	KindText Kind = iota
	// KindExact columns (integers, booleans, enums) are matched by equality on the typed value.
	KindExact
	// KindTemporal columns accept gte/lte/gt/lt range operators.
	KindTemporal
)

// Kind classifies the column type for filtering.
func (t ColumnType) Kind() Kind {
	switch t {
	case Timestamp, Date:
		return KindTemporal
	case Int, Bool, Enum:
		return KindExact
	default:
		return KindText
	}
}

// Searchable reports whether bare q terms are matched against columns of this type.
func (t ColumnType) Searchable() bool {
	return t == String || t == Enum
}

// Filterable reports whether the column may appear in equality filters.
func (t ColumnType) Filterable() bool {
	return t != JSON
}

// Reference describes a foreign key. An empty Schema means the referenced entity lives in the
// same tenant schema as the referencing table.
type Reference struct {
	Entity   string
	Schema   string
	Column   string
	OnDelete string
}

// Column describes one column of an entity.
type Column struct {
	Name       string
	Type       ColumnType
	NotNull    bool
	Unique     bool
	Default    string
	Length     int
	Values     []string
	References *Reference
}

// Relation describes how to reach Target rows from a root row. Without Through the join is
// root.LocalColumn = target.RemoteColumn. With Through the link table sits in between:
// root.LocalColumn = link.ThroughLocal and link.ThroughRemote = target.RemoteColumn.
type Relation struct {
	Name          string
	Target        string
	LocalColumn   string
	RemoteColumn  string
	Through       string
	ThroughLocal  string
	ThroughRemote string
}

// Entity is the static descriptor of one tenant-scoped table.
type Entity struct {
	Name       string
	Label      string
	Columns    []Column
	PrimaryKey []string
	Relations  []Relation

	index map[string]int
}

// Column returns the named column.
func (e Entity) Column(name string) (Column, bool) {
	if e.index != nil {
		i, ok := e.index[name]
		if !ok {
			return Column{}, false
		}
		return e.Columns[i], true
	}
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the entity defines name.
func (e Entity) HasColumn(name string) bool {
	_, ok := e.Column(name)
	return ok
}

// ColumnNames returns the column names in declaration order.
func (e Entity) ColumnNames() []string {
	names := make([]string, 0, len(e.Columns))
	for _, c := range e.Columns {
		names = append(names, c.Name)
	}
	return names
}

// SearchableColumns returns the columns matched by bare q terms.
func (e Entity) SearchableColumns() []Column {
	var out []Column
	for _, c := range e.Columns {
		if c.Type.Searchable() {
			out = append(out, c)
		}
	}
	return out
}

// Relation returns the named relation.
func (e Entity) Relation(name string) (Relation, bool) {
	for _, r := range e.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// QualifiedTable returns the sanitized "schema"."table" reference for the entity.
func (e Entity) QualifiedTable(schema string) string {
	return pgx.Identifier{schema, e.Name}.Sanitize()
}

// Catalog is an ordered, validated set of entities. Order is dependency order: an entity only
// references entities registered before it.
type Catalog struct {
	entities []Entity
	byName   map[string]int
}

// New validates entities and builds a Catalog.
func New(entities ...Entity) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]int, len(entities))}

	for _, e := range entities {
		if !identifierPattern.MatchString(e.Name) {
			return nil, fmt.Errorf("catalog: invalid entity name %q", e.Name)
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("catalog: entity %q registered twice", e.Name)
		}
		if len(e.PrimaryKey) == 0 {
			return nil, fmt.Errorf("catalog: entity %q has no primary key", e.Name)
		}

		e.index = make(map[string]int, len(e.Columns))
		for i, col := range e.Columns {
			if !identifierPattern.MatchString(col.Name) {
				return nil, fmt.Errorf("catalog: %s: invalid column name %q", e.Name, col.Name)
			}
			if _, dup := e.index[col.Name]; dup {
				return nil, fmt.Errorf("catalog: %s: column %q declared twice", e.Name, col.Name)
			}
			if col.Type == Enum && len(col.Values) == 0 {
				return nil, fmt.Errorf("catalog: %s.%s: enum column without values", e.Name, col.Name)
			}
			if ref := col.References; ref != nil && ref.Schema == "" {
				if _, ok := c.byName[ref.Entity]; !ok && ref.Entity != e.Name {
					return nil, fmt.Errorf("catalog: %s.%s references %q before it is registered", e.Name, col.Name, ref.Entity)
				}
			}
			e.index[col.Name] = i
		}
		for _, pk := range e.PrimaryKey {
			if _, ok := e.index[pk]; !ok {
				return nil, fmt.Errorf("catalog: %s: primary key column %q not declared", e.Name, pk)
			}
		}

		c.byName[e.Name] = len(c.entities)
		c.entities = append(c.entities, e)
	}

	// relations may point forward, so they are checked once every entity is known
	for _, e := range c.entities {
		for _, r := range e.Relations {
			if err := c.validateRelation(e, r); err != nil {
				return nil, err
			}
		}
	}

	return c, nil
}

// MustNew is New for package-level descriptors; it panics on invalid input.
func MustNew(entities ...Entity) *Catalog {
	c, err := New(entities...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) validateRelation(root Entity, r Relation) error {
	target, ok := c.Lookup(r.Target)
	if !ok {
		return fmt.Errorf("catalog: %s.%s: unknown target %q", root.Name, r.Name, r.Target)
	}
	if !root.HasColumn(r.LocalColumn) {
		return fmt.Errorf("catalog: %s.%s: unknown local column %q", root.Name, r.Name, r.LocalColumn)
	}
	if !target.HasColumn(r.RemoteColumn) {
		return fmt.Errorf("catalog: %s.%s: unknown remote column %q", root.Name, r.Name, r.RemoteColumn)
	}
	if r.Through == "" {
		return nil
	}
	link, ok := c.Lookup(r.Through)
	if !ok {
		return fmt.Errorf("catalog: %s.%s: unknown link table %q", root.Name, r.Name, r.Through)
	}
	if !link.HasColumn(r.ThroughLocal) || !link.HasColumn(r.ThroughRemote) {
		return fmt.Errorf("catalog: %s.%s: link columns %q/%q not on %s", root.Name, r.Name, r.ThroughLocal, r.ThroughRemote, link.Name)
	}
	return nil
}

// Lookup returns the named entity.
func (c *Catalog) Lookup(name string) (Entity, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Entity{}, false
	}
	return c.entities[i], true
}

// Entities returns every entity in dependency order.
func (c *Catalog) Entities() []Entity {
	out := make([]Entity, len(c.entities))
	copy(out, c.entities)
	return out
}

// Names returns every entity name in dependency order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entities))
	for _, e := range c.entities {
		names = append(names, e.Name)
	}
	return names
}
