// Package migrations embeds the client SQLite schema. Every file is one
// numbered schema version applied by goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
