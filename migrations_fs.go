package accounts

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the login store schema for every dialect. Dialect
// alternatives live under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the full embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}

// LoginMigrationsFS returns the data/sql/migrations subtree that the SQL
// login store expects.
func LoginMigrationsFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, "data/sql/migrations")
}
