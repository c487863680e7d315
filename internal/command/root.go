// Package command defines the connectly CLI.
package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/connectly/connectly-client/internal/app"
	"github.com/connectly/connectly-client/internal/config"
	"github.com/connectly/connectly-client/internal/httpclient"
	"github.com/connectly/connectly-client/internal/logger"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const metadataApp = "app"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "connectly",
		Usage:   "Authenticated command-line client for the Connectly API",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			LoginCommand(),
			GoogleLoginCommand(),
			LogoutCommand(),
			StatusCommand(),
			CallCommand(),
			UsersCommand(),
			FeedCommand(),
			PostsCommand(),
			PostCommand(),
			CommentsCommand(),
			CommentCommand(),
			FollowCommand(),
			UnfollowCommand(),
		},
		Before: setup,
		After:  teardown,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML config file (default $XDG_CONFIG_HOME/connectly/config.yaml if present)",
			EnvVars: []string{"CONNECTLY_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "base-url",
			Usage: "Backend base URL",
		},
		&cli.StringFlag{
			Name:  "store",
			Usage: "Credential store: file, memory, keychain, redis",
		},
		&cli.StringFlag{
			Name:  "store-path",
			Usage: "Credential file for the file store",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
	}
}

func setup(c *cli.Context) error {
	level := c.String("log-level")
	if c.Bool("verbose") {
		level = "debug"
	}

	opts := []config.Option{
		config.WithOverrides(map[string]any{
			"base_url":      c.String("base-url"),
			"store.backend": c.String("store"),
			"store.path":    c.String("store-path"),
			"log.level":     level,
		}),
	}
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	} else {
		opts = append(opts, config.WithOptionalConfigFile(config.DefaultFile()))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{Env: cfg.Env, Level: cfg.Log.Level, Out: c.App.ErrWriter})
	a, err := app.New(c.Context, cfg, &log)
	if err != nil {
		return err
	}
	a.ReportSession(c.Context)

	c.App.Metadata[metadataApp] = a
	return nil
}

func teardown(c *cli.Context) error {
	if a, ok := c.App.Metadata[metadataApp].(*app.App); ok {
		return a.Close()
	}
	return nil
}

// getApp retrieves the wired application from context.
func getApp(c *cli.Context) (*app.App, error) {
	if a, ok := c.App.Metadata[metadataApp].(*app.App); ok {
		return a, nil
	}
	return nil, errors.New("application not initialized")
}

// explain turns a terminal session failure into a user-facing exit error.
func explain(err error) error {
	if errors.Is(err, httpclient.ErrSessionExpired) {
		return cli.Exit("session expired, run `connectly login` again", 2)
	}
	return err
}
