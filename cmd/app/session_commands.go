package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/fieldvault/cmd/app/commands"
	"github.com/allisson/fieldvault/internal/app"
	"github.com/allisson/fieldvault/internal/config"
)

func getSessionCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-registration-token",
			Usage: "Issue a single-use registration token",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "origin-ip",
					Aliases: []string{"o"},
					Value:   "127.0.0.1",
					Usage:   "Origin address recorded on the grant and used for rate limiting",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				sessionUseCase, err := container.SessionUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreateRegistrationToken(
					ctx,
					sessionUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("origin-ip"),
				)
			},
		},
	}
}
