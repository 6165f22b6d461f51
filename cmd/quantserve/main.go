package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantserve/internal/logger"
	"github.com/samcharles93/quantserve/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "quantserve",
		Usage:   "Serve and evaluate a baseline and an int8-quantized language model",
		Version: version.Resolve().Version,
		Flags:   append(loggingFlags(), configFlag()),
		Before:  setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			serveCmd(),
			generateCmd(),
			evaluateCmd(),
			quantizeCmd(),
			versionCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// setup loads the config file and installs the logger on the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 2)
	}
	fileConfig = cfg
	applyLoggingConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log := logger.Setup(level, logFormat, os.Stderr)
	return logger.WithContext(ctx, log), nil
}
