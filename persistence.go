package auth

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/migrate"
)

// OpenDB opens the store of record described by cfg.
func OpenDB(cfg Config) (*bun.DB, error) {
	var db *bun.DB

	switch driver := strings.ToLower(cfg.GetDatabaseDriver()); driver {
	case DriverSQLite, "":
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.GetDatabaseDSN())
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite database")
		}
		// one connection keeps transactions serialized and in-memory
		// databases alive for the lifetime of the pool
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.GetDatabaseDSN())))
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, errors.New("unsupported database driver", errors.CategoryBadInput).
			WithMetadata(map[string]any{"driver": driver})
	}

	if cfg.GetDatabaseDebug() {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *bun.DB) error {
	dir, err := MigrationsDir()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to read migrations")
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(dir); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to init migrations")
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to apply migrations")
	}

	return nil
}

func supportsRowLocks(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}
