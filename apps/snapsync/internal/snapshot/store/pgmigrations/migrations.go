// Package pgmigrations embeds the SQL migrations for the sync event log.
package pgmigrations

import "embed"

// FS holds the golang-migrate source files.
//
//go:embed *.sql
var FS embed.FS
