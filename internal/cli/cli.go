// Package cli provides the coffee command: the HTTP server plus operator
// tooling for migrations, sessions and users.
//
// It uses urfave/cli/v2 for command parsing.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/quincarter/coffee-app-sub000/internal/config"
	"github.com/quincarter/coffee-app-sub000/internal/logutil"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	metaConfig = "config"
	metaLogger = "logger"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "coffee",
		Usage:   "Coffee web app server and admin tool",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ServeCommand(),
			MigrateCommand(),
			SessionCommand(),
			UserCommand(),
		},
		Before: loadEnvironment,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "env-file",
			Aliases: []string{"e"},
			Usage:   "Path to a .env file; environment variables take precedence",
			Value:   ".env",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Override LOG_LEVEL (debug, info, warn, error)",
			EnvVars: []string{"COFFEE_LOG_LEVEL"},
		},
	}
}

// loadEnvironment resolves config and the logger once for every command.
func loadEnvironment(c *cli.Context) error {
	cfg, err := config.LoadFile(c.String("env-file"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}

	w := c.App.ErrWriter
	if w == nil {
		w = os.Stderr
	}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaLogger] = logutil.New(cfg.LogLevel, cfg.LogFormat, w)
	return nil
}

// GetConfig retrieves the loaded config from context.
func GetConfig(c *cli.Context) (*config.Config, error) {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg, nil
	}
	return nil, errors.New("config not loaded")
}

// GetLogger retrieves the logger from context, falling back to a discarding one.
func GetLogger(c *cli.Context) *slog.Logger {
	if l, ok := c.App.Metadata[metaLogger].(*slog.Logger); ok {
		return l
	}
	return logutil.Discard()
}
