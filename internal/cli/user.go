package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	"github.com/quincarter/coffee-app-sub000/database"
	"github.com/quincarter/coffee-app-sub000/internal/authstore"
	"github.com/quincarter/coffee-app-sub000/internal/db"
	"github.com/quincarter/coffee-app-sub000/internal/profilecache"
	"github.com/quincarter/coffee-app-sub000/pkg/models"
	"github.com/quincarter/coffee-app-sub000/pkg/models/passwd"
	"github.com/quincarter/coffee-app-sub000/pkg/services"
)

// UserCommand returns the user subcommand group, used to bootstrap accounts
// (typically the first admin) without going through the web flow.
func UserCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage user accounts",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true, Usage: "Email address"},
					&cli.StringFlag{Name: "name", Required: true, Usage: "Display name"},
					&cli.StringFlag{Name: "password", EnvVars: []string{"COFFEE_USER_PASSWORD"}, Usage: "Password; omit for a magic-link only account"},
					&cli.StringFlag{Name: "role", Value: models.RoleUser.String(), Usage: "Role: " + strings.Join(models.ListRoles(), ", ")},
					&cli.BoolFlag{Name: "verified", Usage: "Mark the email as verified"},
				},
				Action: withDB(userCreate),
			},
			{
				Name:   "list",
				Usage:  "List users",
				Action: withDB(userList),
			},
			{
				Name:   "disable",
				Usage:  "Disable a user; their sessions stop passing the gate",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "email", Required: true, Usage: "Email address"}},
				Action: withDB(userSetActive(false)),
			},
			{
				Name:   "enable",
				Usage:  "Re-enable a disabled user",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "email", Required: true, Usage: "Email address"}},
				Action: withDB(userSetActive(true)),
			},
		},
	}
}

func newAuthStore(c *cli.Context, conn *sqlx.DB, t db.Type) (authstore.Store, error) {
	cfg, err := GetConfig(c)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(conn.DB, t); err != nil {
		return nil, err
	}
	return authstore.New(conn, GetLogger(c), passwd.NewHasher(cfg.BcryptCost)), nil
}

func userCreate(c *cli.Context, conn *sqlx.DB, t db.Type) error {
	role, err := models.ParseRole(c.String("role"))
	if err != nil {
		return err
	}
	store, err := newAuthStore(c, conn, t)
	if err != nil {
		return err
	}

	params := models.CreateUserParams{
		Email: c.String("email"),
		Name:  c.String("name"),
		Role:  role,
	}
	if c.IsSet("password") {
		pw := c.String("password")
		params.Password = &pw
	}

	user, err := store.CreateUser(c.Context, params)
	if err != nil {
		var dup *db.DuplicateKeyError
		if errors.As(err, &dup) {
			return fmt.Errorf("a user with that %s already exists", dup.Field)
		}
		return err
	}
	if c.Bool("verified") {
		if err := store.MarkEmailVerified(c.Context, user.ID); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.App.Writer, "created user %s (%s, %s)\n", user.ID, user.Email, user.Role)
	return nil
}

func userList(c *cli.Context, conn *sqlx.DB, t db.Type) error {
	store, err := newAuthStore(c, conn, t)
	if err != nil {
		return err
	}
	users, err := store.ListAllUsers(c.Context)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\tverified=%t\tactive=%t\n", u.ID, u.Email, u.Role, u.EmailVerified, u.IsActive)
	}
	return nil
}

// userSetActive flips is_active through Services so a configured profile
// cache is invalidated along with the row.
func userSetActive(active bool) func(c *cli.Context, conn *sqlx.DB, t db.Type) error {
	return func(c *cli.Context, conn *sqlx.DB, t db.Type) error {
		cfg, err := GetConfig(c)
		if err != nil {
			return err
		}
		var opts []services.Option
		if cfg.RedisURL != "" {
			rdb, err := profilecache.NewClient(c.Context, cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("unable to connect to redis: %w", err)
			}
			defer rdb.Close()
			opts = append(opts, services.WithProfileCache(rdb, cfg.ProfileCacheTTL))
		}

		svc := services.New(conn, t, GetLogger(c), passwd.NewHasher(cfg.BcryptCost), opts...)
		if err := svc.RunMigrations(); err != nil {
			return err
		}
		user, err := svc.Auth.GetUserByEmail(c.Context, c.String("email"))
		if err != nil {
			return err
		}
		if err := svc.SetUserActive(c.Context, user.ID, active); err != nil {
			return err
		}

		state := "disabled"
		if active {
			state = "enabled"
		}
		fmt.Fprintf(c.App.Writer, "%s user %s (%s)\n", state, user.ID, user.Email)
		return nil
	}
}
