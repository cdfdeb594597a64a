package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/fieldvault/cmd/app/commands"
	"github.com/allisson/fieldvault/internal/app"
	"github.com/allisson/fieldvault/internal/config"
	cryptoService "github.com/allisson/fieldvault/internal/crypto/service"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-cache-key",
			Usage: "Generate a new server-local cache key for split-DEK session caching",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Value:   "",
					Usage:   "Cache key ID (e.g., prod-cache-key-2026)",
				},
				&cli.StringFlag{
					Name:    "algorithm",
					Aliases: []string{"alg"},
					Value:   "aes-gcm",
					Usage:   "Encryption algorithm to use (aes-gcm or chacha20-poly1305)",
				},
				&cli.StringFlag{
					Name:     "kms-provider",
					Value:    "",
					Required: true,
					Usage:    "KMS provider (localsecrets, gcpkms, awskms, azurekeyvault, hashivault)",
				},
				&cli.StringFlag{
					Name:     "kms-key-uri",
					Value:    "",
					Required: true,
					Usage:    "KMS key URI (e.g., base64key://, gcpkms://projects/.../cryptoKeys/...)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunCreateCacheKey(
					ctx,
					cryptoService.NewKMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.String("algorithm"),
					cmd.String("kms-provider"),
					cmd.String("kms-key-uri"),
				)
			},
		},
		{
			Name:  "create-escrow-keypair",
			Usage: "Generate the administrator escrow RSA key pair",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "bits",
					Aliases: []string{"b"},
					Value:   3072,
					Usage:   "RSA modulus size in bits (minimum 3072)",
				},
				&cli.StringFlag{
					Name:    "private-out",
					Value:   "escrow.pem",
					Usage:   "Output path for the passphrase-protected private key (store offline)",
				},
				&cli.StringFlag{
					Name:    "public-out",
					Value:   "escrow.pub.pem",
					Usage:   "Output path for the public key configured on the server",
				},
				&cli.StringFlag{
					Name:    "passphrase-env",
					Value:   "ESCROW_PASSPHRASE",
					Usage:   "Environment variable holding the private key passphrase",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunCreateEscrowKeypair(
					commands.DefaultIO().Writer,
					int(cmd.Int("bits")),
					cmd.String("private-out"),
					cmd.String("public-out"),
					[]byte(os.Getenv(cmd.String("passphrase-env"))),
				)
			},
		},
		{
			Name:  "admin-unwrap",
			Usage: "Recover a DEK from its escrow wrap token (offline)",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "wrapped",
					Aliases:  []string{"w"},
					Required: true,
					Usage:    "The admin_wrapped_dek value from the identity record",
				},
				&cli.StringFlag{
					Name:     "key",
					Aliases:  []string{"k"},
					Required: true,
					Usage:    "Path to the escrow private key PEM file",
				},
				&cli.StringFlag{
					Name:    "passphrase-env",
					Value:   "ESCROW_PASSPHRASE",
					Usage:   "Environment variable holding the private key passphrase",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunAdminUnwrap(
					commands.DefaultIO().Writer,
					cmd.String("wrapped"),
					cmd.String("key"),
					[]byte(os.Getenv(cmd.String("passphrase-env"))),
				)
			},
		},
	}
}
