// Package migrations embeds the SQL schema applied by goose at startup.
package migrations

import "embed"

// FS embeds all .sql migration files in this directory.
//
//go:embed *.sql
var FS embed.FS
