// Package migrations embeds the PostgreSQL schema for the restaurant store.
package migrations

import "embed"

// FS holds the *.up.sql files applied by database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
