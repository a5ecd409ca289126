// Package dbmigrations exposes embedded SQL migrations for statekit binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into statekit binaries.
//
//go:embed *.sql
var Files embed.FS
