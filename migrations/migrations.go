// Package migrations embeds the SQL that creates the Postgres journal tables.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
