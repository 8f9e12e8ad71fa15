package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	hostLabelPattern  = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
)

// ToSnake converts a kebab-case host label into snake_case for schema names.
func ToSnake(label string) string {
	return strings.ReplaceAll(strings.ToLower(label), "-", "_")
}

// ValidHostLabel reports whether label is a lowercase DNS label.
func ValidHostLabel(label string) bool {
	return hostLabelPattern.MatchString(label)
}

// ValidateSchemaName enforces a lowercase identifier that is safe to use as a PostgreSQL schema.
// pg_ prefixed names are reserved by PostgreSQL.
func ValidateSchemaName(name string) error {
	if name == "" {
		return fmt.Errorf("schema name is required")
	}
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("invalid schema name %q: must match %s", name, schemaNamePattern.String())
	}
	if strings.HasPrefix(name, "pg_") || name == "information_schema" {
		return fmt.Errorf("schema name %q is reserved", name)
	}
	return nil
}

// SpaceForKey builds the Space for a tenant key. Keys that cannot form a valid schema
// fall back to the default space.
func SpaceForKey(key string) Space {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || key == DefaultKey {
		return Default()
	}
	schema := ToSnake(key)
	if ValidateSchemaName(schema) != nil {
		return Default()
	}
	return Space{Key: key, SchemaName: schema}
}
