package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/quincarter/coffee-app-sub000/internal/db"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// RunMigrations applies all pending schema migrations for the given backend.
//
// Migrations are embedded from migrations/sqlite or migrations/postgres.
// An already up-to-date database is not an error. The migrate instance is
// deliberately not closed: closing it would close conn, which the caller owns.
func RunMigrations(conn *sql.DB, t db.Type) error {
	m, err := newMigrate(conn, t)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// RollbackMigrations reverts every applied migration.
func RollbackMigrations(conn *sql.DB, t db.Type) error {
	m, err := newMigrate(conn, t)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Version reports the current schema version and whether it is dirty.
func Version(conn *sql.DB, t db.Type) (uint, bool, error) {
	m, err := newMigrate(conn, t)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func newMigrate(conn *sql.DB, t db.Type) (*migrate.Migrate, error) {
	var (
		driver database.Driver
		dir    string
		dbName string
		err    error
	)
	switch t {
	case db.SQLite:
		driver, err = sqlitemigrate.WithInstance(conn, &sqlitemigrate.Config{})
		dir, dbName = "migrations/sqlite", "sqlite3"
	case db.Postgres:
		driver, err = pgxmigrate.WithInstance(conn, &pgxmigrate.Config{})
		dir, dbName = "migrations/postgres", "pgx5"
	default:
		return nil, fmt.Errorf("unsupported database type %q", string(t))
	}
	if err != nil {
		return nil, fmt.Errorf("migrate driver: %w", err)
	}

	source, err := iofs.New(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, dbName, driver)
}
