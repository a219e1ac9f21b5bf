package cli

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	"github.com/quincarter/coffee-app-sub000/database"
	"github.com/quincarter/coffee-app-sub000/internal/config"
	"github.com/quincarter/coffee-app-sub000/internal/db"
)

// MigrateCommand returns the migrate subcommand group.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Subcommands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Action: withDB(migrateUp),
			},
			{
				Name:   "down",
				Usage:  "Roll back every migration",
				Action: withDB(migrateDown),
			},
			{
				Name:   "version",
				Usage:  "Print the current schema version",
				Action: withDB(migrateVersion),
			},
		},
	}
}

// withDB opens the configured database for the duration of action.
func withDB(action func(c *cli.Context, conn *sqlx.DB, t db.Type) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := GetConfig(c)
		if err != nil {
			return err
		}
		conn, t, err := openDB(c.Context, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()
		return action(c, conn, t)
	}
}

func openDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, db.Type, error) {
	t := db.Type(cfg.DBType)
	conn, err := db.Open(ctx, t, cfg.DatabaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	return conn, t, nil
}

func migrateUp(c *cli.Context, conn *sqlx.DB, t db.Type) error {
	if err := database.RunMigrations(conn.DB, t); err != nil {
		return err
	}
	return migrateVersion(c, conn, t)
}

func migrateDown(c *cli.Context, conn *sqlx.DB, t db.Type) error {
	if err := database.RollbackMigrations(conn.DB, t); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "rolled back all migrations")
	return nil
}

func migrateVersion(c *cli.Context, conn *sqlx.DB, t db.Type) error {
	v, dirty, err := database.Version(conn.DB, t)
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(c.App.Writer, "schema version %d (dirty)\n", v)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "schema version %d\n", v)
	return nil
}
