// Package migrations содержит SQL-миграции схемы хранилища.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
