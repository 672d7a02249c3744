// Package migrations carries the goose schema of the notifier.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
