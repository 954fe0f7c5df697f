// Package migrations embeds the SQL schema applied by cmd/migrate and by the
// server when MIGRATIONS_AUTO is enabled.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
