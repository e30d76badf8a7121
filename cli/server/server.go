// Package server implements the "server" CLI command: the long-running
// notary process that serves NotaryHTTP and, unless the cache-only mode
// is set, periodically drives ScannerPool over a configured service list.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	notarycli "github.com/nwnotary/notary-server/cli"
	"github.com/nwnotary/notary-server/pkg/scanner"
)

// NewCommand returns the "server" command.
func NewCommand() *cli.Command {
	flags := append([]cli.Flag{}, notarycli.SharedFlags...)
	return &cli.Command{
		Name:      "server",
		Usage:     "Run the notary's HTTP query service",
		UsageText: "notary server [--config-file file] [--debug]",
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

	log.Info("no per-request logging: client privacy is a hard requirement")

	grace, cancel := context.WithCancel(newGraceContext())
	defer cancel()

	comps, teardown, err := notarycli.Build(cfg, log)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer teardown()

	httpSrv := &http.Server{Handler: comps.Handler}
	errCh := make(chan error, 1)
	for _, addr := range cfg.HTTP.Addresses {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return cli.Exit(fmt.Errorf("listen %s: %w", addr, err), 1)
		}
		addr := addr
		go func() {
			log.Info("serving notary queries", zap.String("address", addr))
			if serveErr := httpSrv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
				errCh <- serveErr
			}
		}()
	}

	if !cfg.Cache.CacheOnly && cfg.Scanner.ServiceList != "" {
		scanCtx, scanCancel := context.WithCancel(grace)
		defer scanCancel()
		go runScanLoop(scanCtx, cfg.Scanner.Interval, comps.Scanner, cfg.Scanner.ServiceList, log)
	}

	select {
	case <-grace.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("http server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// runScanLoop drives a ScannerPool pass over the configured service list
// every interval, until ctx is cancelled, per the specification's
// scheduled-scan data flow (out-of-band from the HTTP request path).
func runScanLoop(ctx context.Context, interval time.Duration, pool *scanner.Pool, listPath string, log *zap.Logger) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		services, err := notarycli.LoadServiceList(listPath)
		if err != nil {
			log.Error("failed to load service list", zap.Error(err))
		} else {
			stats := pool.Run(ctx, services)
			log.Info("scan pass complete",
				zap.Int64("attempted", stats.Attempted),
				zap.Int64("succeeded", stats.Succeeded))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func newGraceContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	signal.Notify(stop, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()
	return ctx
}
