// Package migrations embeds the SQL schema migrations for mumble.db.
package migrations

import "embed"

// FS holds the numbered *.up.sql / *.down.sql files read by golang-migrate.
//
//go:embed *.sql
var FS embed.FS
