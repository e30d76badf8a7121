// Package cli assembles the notary's command-line surface on top of
// urfave/cli/v2, adapted from the teacher's cli/options package: shared
// flags, a config loader and a logging-parameter handler, all reused
// across the server/scan/sign-list commands.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/nwnotary/notary-server/pkg/config"
)

// ConfigFlag and DebugFlag are shared across every subcommand.
var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config-file",
		Aliases: []string{"c"},
		Usage:   "Path to the notary's YAML config file",
		Value:   "./config/notary.yml",
	}
	DebugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug-level logging regardless of the configured LogLevel",
	}
	ForceTimestampFlag = &cli.BoolFlag{
		Name:   "force-timestamp-logs",
		Usage:  "Add timestamps to log entries even when stdout is not a TTY",
		Hidden: true,
	}
)

// SharedFlags are appended to every subcommand's own flag list.
var SharedFlags = []cli.Flag{ConfigFlag, DebugFlag, ForceTimestampFlag}

// GetConfigFromContext loads the notary's configuration from the
// --config-file flag.
func GetConfigFromContext(ctx *cli.Context) (config.Config, error) {
	return config.Load(ctx.String("config-file"))
}

// HandleLoggingParams builds the notary's zap.Logger from cfg.Logger and
// the --debug/--force-timestamp-logs flags, adapted from the teacher's
// cli/options.HandleLoggingParams: production encoder config, console or
// JSON encoding, TTY-sensitive timestamps (so piping to a log aggregator
// doesn't duplicate timestamps the aggregator already stamps), debug
// override via flag.
func HandleLoggingParams(ctx *cli.Context, cfg config.Logger) (*zap.Logger, *zap.AtomicLevel, error) {
	level := zapcore.InfoLevel
	encoding := "console"
	var err error

	if cfg.LogLevel != "" {
		level, err = zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("log setting: %w", err)
		}
	}
	if cfg.LogEncoding != "" {
		encoding = cfg.LogEncoding
	}
	if ctx != nil && ctx.Bool("debug") {
		level = zapcore.DebugLevel
	}

	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if term.IsTerminal(int(os.Stdout.Fd())) || (ctx != nil && ctx.Bool("force-timestamp-logs")) || (cfg.LogTimestamp != nil && *cfg.LogTimestamp) {
		cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cc.EncoderConfig.EncodeTime = func(time.Time, zapcore.PrimitiveArrayEncoder) {}
	}
	cc.Encoding = encoding
	cc.Level = zap.NewAtomicLevelAt(level)
	cc.Sampling = nil

	if cfg.LogPath != "" {
		if err := os.MkdirAll(dirOf(cfg.LogPath), 0755); err != nil {
			return nil, nil, fmt.Errorf("could not create log dir: %w", err)
		}
		cc.OutputPaths = []string{cfg.LogPath}
	}

	log, err := cc.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("could not build logger: %w", err)
	}
	atom := cc.Level
	return log, &atom, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
