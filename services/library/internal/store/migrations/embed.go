package migrations

import "embed"

// FS contains the goose migrations for the books table.
//
//go:embed *.sql
var FS embed.FS
