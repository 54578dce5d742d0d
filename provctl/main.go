package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/jveski/provision/internal/log"
	"github.com/jveski/provision/internal/manifest"
	"github.com/jveski/provision/internal/supervisor"
)

func main() {
	app := &cli.App{
		Name:  "provctl",
		Usage: "Provision this host from a manifest",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "manifest",
				Aliases: []string{"f"},
				Usage:   "path to the provisioning manifest",
				Value:   "provision.toml",
				EnvVars: []string{"PROVCTL_MANIFEST"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "one of `debug`, `info`, `warn` or `error`",
				Value:   "info",
				EnvVars: []string{"PROVCTL_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			log.Configure(log.Config{Level: c.String("log-level"), Output: c.App.ErrWriter, Console: true})
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "apply",
				Usage:  "Bring the host in line with the manifest",
				Action: applyCmd,
			},
			{
				Name:   "render",
				Usage:  "Print the supervisord config the manifest would produce without touching the host",
				Action: renderCmd,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err == nil {
		return
	}

	fmt.Fprint(os.Stderr, getErrorString(err))
	os.Exit(1)
}

func loadManifest(c *cli.Context) (*manifest.Manifest, error) {
	m, err := manifest.Load(c.String("manifest"))
	if err != nil {
		return nil, err
	}

	logger := log.Base()
	if len(m.Undecoded) > 0 {
		logger.Warn().Strs("keys", m.Undecoded).Msg("ignoring unknown manifest keys")
	}

	if m.Owner == "" {
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("no owner in manifest and the current user is unknown: %w", err)
		}
		m.Owner = u.Username
	}
	return m, nil
}

func getErrorString(err error) string {
	ep := &supervisor.ErrIncompleteProgram{}
	if errors.As(err, &ep) {
		return fmt.Sprintf("Program %q can't be supervised without a %s.\nSet it in the manifest like this:\n\n[[ supervisor.program ]]\nname = %q\ndirectory = \"/path/to/app\"\ncommand = \"bin/app\"\n\n", ep.Name, strings.Join(ep.Missing, " and a "), ep.Name)
	}

	em := &manifest.ErrInvalid{}
	if errors.As(err, &em) {
		return fmt.Sprintf("The manifest %s is invalid:\n\n  - %s\n\n", em.File, strings.Join(em.Reasons, "\n  - "))
	}

	return fmt.Sprintf("error: %s\n", err)
}
