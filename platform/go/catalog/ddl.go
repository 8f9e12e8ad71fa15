package catalog

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// TableResolver maps a tenant entity name onto its sanitized, schema-qualified table.
type TableResolver func(entity string) (string, error)

// SQLType returns the PostgreSQL type used for the column.
func (c Column) SQLType() string {
	switch c.Type {
	case String, Enum:
		if c.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Length)
		}
		return "TEXT"
	case Int:
		return "INTEGER"
	case Bool:
		return "BOOLEAN"
	case Float:
		return "DOUBLE PRECISION"
	case Timestamp:
		return "TIMESTAMPTZ"
	case Date:
		return "DATE"
	case UUID:
		return "UUID"
	case JSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// CreateTableSQL renders an idempotent CREATE TABLE statement for the entity. The entity's own
// table and every same-schema reference are qualified through resolve.
func (e Entity) CreateTableSQL(resolve TableResolver) (string, error) {
	table, err := resolve(e.Name)
	if err != nil {
		return "", err
	}

	var defs []string
	for _, c := range e.Columns {
		def := pgx.Identifier{c.Name}.Sanitize() + " " + c.SQLType()
		if c.NotNull {
			def += " NOT NULL"
		}
		if c.Default != "" {
			def += " DEFAULT " + c.Default
		}
		if c.Unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}

	defs = append(defs, "PRIMARY KEY ("+joinIdentifiers(e.PrimaryKey)+")")

	for _, c := range e.Columns {
		if c.Type == Enum {
			quoted := make([]string, 0, len(c.Values))
			for _, v := range c.Values {
				quoted = append(quoted, quoteLiteral(v))
			}
			defs = append(defs, fmt.Sprintf("CHECK (%s IN (%s))", pgx.Identifier{c.Name}.Sanitize(), strings.Join(quoted, ", ")))
		}

		ref := c.References
		if ref == nil {
			continue
		}
		var target string
		if ref.Schema != "" {
			target = pgx.Identifier{ref.Schema, ref.Entity}.Sanitize()
		} else if target, err = resolve(ref.Entity); err != nil {
			return "", fmt.Errorf("%s.%s: %w", e.Name, c.Name, err)
		}
		refColumn := ref.Column
		if refColumn == "" {
			refColumn = "id"
		}
		fk := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			pgx.Identifier{c.Name}.Sanitize(), target, pgx.Identifier{refColumn}.Sanitize())
		if ref.OnDelete != "" {
			fk += " ON DELETE " + ref.OnDelete
		}
		defs = append(defs, fk)
	}

	return "CREATE TABLE IF NOT EXISTS " + table + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)", nil
}

func joinIdentifiers(names []string) string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, pgx.Identifier{n}.Sanitize())
	}
	return strings.Join(out, ", ")
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
