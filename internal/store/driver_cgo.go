//go:build sqlite_cgo

package store

// Built with the sqlite_cgo tag: the C SQLite amalgamation via mattn/go-sqlite3.
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver used by SQLiteStore.
	DriverName = "sqlite3"

	// BuildMode describes the SQLite build configuration.
	BuildMode = "cgo"
)
