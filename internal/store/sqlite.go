package store

import (
	_ "modernc.org/sqlite"
)

// NewSQLiteStore returns a store backed by the sqlite file at path.
func NewSQLiteStore(path string) *SQLStore {
	return &SQLStore{
		dsn:     path,
		dialect: dialect{driver: "sqlite", blob: "BLOB", real: "REAL"},
	}
}
