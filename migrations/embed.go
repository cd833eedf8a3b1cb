// Package migrations embeds SQL migration files for goose.
package migrations

import "embed"

// FS holds all .sql migrations.
//
//go:embed *.sql
var FS embed.FS
