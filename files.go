package auth

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// MigrationsDir returns the migrations rooted at their own directory, the
// layout bun/migrate expects.
func MigrationsDir() (fs.FS, error) {
	return fs.Sub(migrationsFS, "data/sql/migrations")
}
