// Package migrations embeds the SQL schema so the binary needs no files on disk.
package migrations

import "embed"

// FS holds the *.sql migrations at its root.
//
//go:embed *.sql
var FS embed.FS
