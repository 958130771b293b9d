// Package db embeds the PostgreSQL migrations applied by `migrate`.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
