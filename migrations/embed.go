// Package migrations embeds the esplink SQL schema into the binary.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files, at the root of the filesystem.
//
//go:embed *.sql
var FS embed.FS
