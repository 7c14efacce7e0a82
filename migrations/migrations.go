// Package migrations embeds the goose SQL migrations for the chat backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
