package storage

import (
	"context"
	"fmt"

	"github.com/claude/liftlog/internal/config"
)

// Open connects the backend selected by cfg.Driver. For Postgres, pending
// migrations from migrationsPath are applied first. The returned func
// releases the backend.
func Open(ctx context.Context, cfg config.DatabaseConfig, migrationsPath string) (Backend, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	case config.DriverPostgres:
		dsn := cfg.DSN()
		if err := RunMigrations(dsn, migrationsPath); err != nil {
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		db, err := New(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
