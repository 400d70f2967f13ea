// Package migrations applies the embedded Postgres schema with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const (
	sourceName   = "iofs"
	databaseName = "pgx5"
	sourceDir    = "sql"
)

//go:embed sql/*.sql
var files embed.FS

// Files exposes the embedded migration files.
func Files() embed.FS {
	return files
}

// Up applies every pending migration; an up-to-date schema is not an error.
func Up(db *sql.DB) error {
	migrator, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations.up: %w", err)
	}
	return nil
}

// Down reverts every applied migration.
func Down(db *sql.DB) error {
	migrator, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations.down: %w", err)
	}
	return nil
}

// Version returns the applied schema version and whether it is dirty.
func Version(db *sql.DB) (uint, bool, error) {
	migrator, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrations.version: %w", err)
	}
	return version, dirty, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	if db == nil {
		return nil, errors.New("migrations: database is nil")
	}
	source, err := iofs.New(files, sourceDir)
	if err != nil {
		return nil, fmt.Errorf("migrations.source: %w", err)
	}
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations.driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance(sourceName, source, databaseName, driver)
	if err != nil {
		return nil, fmt.Errorf("migrations.init: %w", err)
	}
	return migrator, nil
}
