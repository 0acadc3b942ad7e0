// Package migrations embeds the SQLite schema migrations into the binary.
//
// Files follow YYYYMMDD_HHMMSS_description.{up,down}.sql and are applied in
// version order by database.DB.Migrate.
package migrations

import "embed"

//go:embed *.sql
var files embed.FS

// FS exposes the embedded migration files at its root.
var FS = files
