//go:build !sqlite_cgo

package store

// Built by default: pure Go SQLite, no C compiler required.
//
//	CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver used by SQLiteStore.
	DriverName = "sqlite"

	// BuildMode describes the SQLite build configuration.
	BuildMode = "purego"
)
