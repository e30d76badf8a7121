// Package scan implements the "scan" CLI command: a one-shot bulk scan of
// a service list (the out-of-band half of the specification's scanner
// data flow, run without the long-lived HTTP surface), plus a
// --report-stale report adapted from the original implementation's
// list_by_last_obs.py.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	notarycli "github.com/nwnotary/notary-server/cli"
	"github.com/nwnotary/notary-server/pkg/store"
)

// NewCommand returns the "scan" command.
func NewCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:     "list",
			Usage:    "Path to a newline-separated service-ID list",
			Required: true,
		},
		&cli.DurationFlag{
			Name:  "report-stale",
			Usage: "Instead of scanning, list services whose most recent observation is older than this duration",
		},
	}, notarycli.SharedFlags...)
	return &cli.Command{
		Name:      "scan",
		Usage:     "Run one bulk scan pass over a service list",
		UsageText: "notary scan --list services.txt [--config-file file]",
		Action:    run,
		Flags:     flags,
	}
}

func run(ctx *cli.Context) error {
	cfg, err := notarycli.GetConfigFromContext(ctx)
	if err != nil {
		return cli.Exit(err, 1)
	}
	log, _, err := notarycli.HandleLoggingParams(ctx, cfg.Logger)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer func() { _ = log.Sync() }()

	comps, teardown, err := notarycli.Build(cfg, log)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer teardown()

	if d := ctx.Duration("report-stale"); d > 0 {
		return reportStale(ctx, comps.Store, d)
	}

	services, err := notarycli.LoadServiceList(ctx.String("list"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	stats := comps.Scanner.Run(context.Background(), services)
	fmt.Fprintf(ctx.App.Writer, "attempted=%d succeeded=%d timeout=%d tls_alert=%d conn_refused=%d conn_reset=%d no_route=%d dns=%d invalid_fp=%d other=%d\n",
		stats.Attempted, stats.Succeeded, stats.Timeout, stats.TLSAlert,
		stats.ConnRefused, stats.ConnReset, stats.NoRoute, stats.DNSFailure,
		stats.InvalidFP, stats.Other)
	return nil
}

// reportStale lists every service whose most recent observation ended at
// or before (now - maxAge), adapted from the original
// notary_util/list_by_last_obs.py report.
func reportStale(ctx *cli.Context, st store.ObservationStore, maxAge time.Duration) error {
	endLimit := time.Now().Add(-maxAge).Unix()
	names, err := st.GetOldestServiceNames(context.Background(), endLimit)
	if err != nil {
		return cli.Exit(err, 1)
	}
	for _, name := range names {
		fmt.Fprintln(ctx.App.Writer, name)
	}
	return nil
}
