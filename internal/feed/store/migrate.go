package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for golang-migrate

	"github.com/renix-codex/feedsync/internal/feed/store/migrations"
	"github.com/renix-codex/feedsync/internal/logger"
)

const migrationsTable = "schema_migrations"

// RunMigrations brings the Postgres schema at dsn up to date. golang-migrate
// takes an advisory lock, so concurrent callers are safe.
func RunMigrations(ctx context.Context, dsn string) error {
	m, closeFn, err := newMigrate(ctx, dsn)
	if err != nil {
		return err
	}
	defer closeFn()

	logger.InfoCtx(ctx, "applying migrations")
	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.InfoCtx(ctx, "no migrations to apply")
	case err != nil:
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	logger.InfoCtx(ctx, "schema version", "version", version, "dirty", dirty)
	if dirty {
		logger.WarnCtx(ctx, "schema is dirty, manual intervention may be required")
	}
	return nil
}

// MigrationVersion reports the applied schema version. Zero means no
// migration has run.
func MigrationVersion(ctx context.Context, dsn string) (uint, bool, error) {
	m, closeFn, err := newMigrate(ctx, dsn)
	if err != nil {
		return 0, false, err
	}
	defer closeFn()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrate(ctx context.Context, dsn string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, func() { m.Close() }, nil
}
