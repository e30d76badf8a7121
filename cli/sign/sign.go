// Package sign implements the "sign-list" CLI command, adapted from the
// original implementation's admin/sign_notary_list.py: sign a
// newline-separated list of notary server addresses (for client
// bootstrap bundles) with the same RSA key used for per-service replies,
// but over the raw list bytes rather than the packed observation layout.
package sign

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	notarycli "github.com/nwnotary/notary-server/cli"
	"github.com/nwnotary/notary-server/pkg/signer"
)

// NewCommand returns the "sign-list" command.
func NewCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:     "list",
			Usage:    "Path to a newline-separated list of notary server addresses",
			Required: true,
		},
	}, notarycli.ConfigFlag)
	return &cli.Command{
		Name:      "sign-list",
		Usage:     "Sign a notary-address bootstrap list with the notary's private key",
		UsageText: "notary sign-list --list addresses.txt [--config-file file]",
		Action:    run,
		Flags:     flags,
	}
}

func run(ctx *cli.Context) error {
	cfg, err := notarycli.GetConfigFromContext(ctx)
	if err != nil {
		return cli.Exit(err, 1)
	}

	data, err := os.ReadFile(ctx.String("list"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	key, err := signer.LoadPrivateKey(cfg.Keys.PrivateKeyPath)
	if err != nil {
		return cli.Exit(err, 1)
	}

	sig, err := signer.New(key).SignRaw(data)
	if err != nil {
		return cli.Exit(err, 1)
	}

	fmt.Fprintln(ctx.App.Writer, sig)
	return nil
}
