package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/quincarter/coffee-app-sub000/pkg/models"
	"github.com/quincarter/coffee-app-sub000/pkg/session"
)

// SessionCommand returns the session subcommand group. Both commands use the
// configured signing key, so tokens they produce are accepted by the server.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Encode and inspect session tokens",
		Subcommands: []*cli.Command{
			{
				Name:  "encode",
				Usage: "Sign a session token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user-id",
						Aliases:  []string{"u"},
						Usage:    "User ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "email",
						Usage: "Email in the user snapshot",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name in the user snapshot",
					},
					&cli.StringFlag{
						Name:  "role",
						Value: models.RoleUser.String(),
						Usage: "Role in the user snapshot: " + strings.Join(models.ListRoles(), ", "),
					},
				},
				Action: sessionEncode,
			},
			{
				Name:      "decode",
				Usage:     "Validate a session token and print its contents",
				ArgsUsage: "TOKEN",
				Action:    sessionDecode,
			},
		},
	}
}

func newCodec(c *cli.Context) (*session.Codec, error) {
	cfg, err := GetConfig(c)
	if err != nil {
		return nil, err
	}
	log := GetLogger(c)
	key, insecure := cfg.SessionKey()
	if insecure {
		log.Error("SESSION_SECRET is not set, using the built-in development key")
	}
	return session.NewCodec(key, session.WithTTL(cfg.SessionTTL), session.WithLogger(log))
}

func sessionEncode(c *cli.Context) error {
	role, err := models.ParseRole(c.String("role"))
	if err != nil {
		return err
	}
	codec, err := newCodec(c)
	if err != nil {
		return err
	}

	token, err := codec.Encode(models.Session{
		UserID: c.String("user-id"),
		User: models.UserSnapshot{
			Email: c.String("email"),
			Name:  c.String("name"),
			Role:  role,
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}

func sessionDecode(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("session token required")
	}
	codec, err := newCodec(c)
	if err != nil {
		return err
	}

	s, err := codec.Inspect(c.Args().First())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
