package db

import "embed"

// MigrationFS embeds the schema migrations (accounts, roles, memberships, audit records).
// Applied by internal/db/migrate from cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
