// Package migrations embeds the goose SQL migrations for the local key-value
// substrate (local/) and the remote sync schema (remote/).
package migrations

import "embed"

//go:embed local/*.sql remote/*.sql
var FS embed.FS

const (
	// LocalDir holds the SQLite migrations for the key-value substrate.
	LocalDir = "local"
	// RemoteDir holds the Postgres migrations for the sync tables.
	RemoteDir = "remote"
)
