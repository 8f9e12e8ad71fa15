// Package sqlassets embeds the goose migrations that shape the platform schema.
package sqlassets

import "embed"

// MigrationsDir is the directory inside Migrations that goose reads from.
const MigrationsDir = "migrations"

//go:embed migrations/*.sql
var Migrations embed.FS
