// Package db opens the SQL connection used by the identity and token stores.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	// Register the pgx driver as "pgx" with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Register the sqlite3 driver with database/sql.
	_ "github.com/mattn/go-sqlite3"
)

// Type selects the SQL backend.
type Type string

const (
	SQLite   Type = "sqlite"
	Postgres Type = "postgres"
)

// DriverName is the database/sql driver registered for t.
func (t Type) DriverName() (string, error) {
	switch t {
	case SQLite:
		return "sqlite3", nil
	case Postgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported database type %q", string(t))
	}
}

// Open connects to dsn and pings it. Caller must call Close when done.
// SQLite gets a single connection so an in-memory database is shared and
// writers never contend for the file lock.
func Open(ctx context.Context, t Type, dsn string) (*sqlx.DB, error) {
	driver, err := t.DriverName()
	if err != nil {
		return nil, err
	}
	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t, err)
	}
	if t == SQLite {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", t, err)
	}
	return conn, nil
}
