package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantserve/internal/api"
	"github.com/samcharles93/quantserve/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr           string
		promptsPath    string
		readTimeout    time.Duration
		requestTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the generation, metadata and evaluation API",
		Flags: append(append(modelFlags(), generationFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Sources:     cli.EnvVars("SERVER_ADDR"),
				Destination: &addr,
			},
			&cli.StringFlag{
				Name:        "prompts",
				Usage:       "JSON file of evaluation samples (default: built-in samples)",
				Sources:     cli.EnvVars("EVAL_PROMPTS_PATH"),
				Destination: &promptsPath,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.DurationFlag{
				Name:        "request-timeout",
				Usage:       "deadline for a single generation (0 = none)",
				Destination: &requestTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, fileConfig, &addr, &promptsPath)
			log := logger.FromContext(ctx)
			if err := checkGenDefaults(genDefaults()); err != nil {
				return cli.Exit(err.Error(), 2)
			}

			provider := api.NewLoadingProvider(modelLoader(log))
			provider.Start(ctx)
			defer func() {
				if err := provider.Close(); err != nil {
					log.Warn("close models", "error", err)
				}
			}()

			server := api.NewServer(api.Config{
				Provider:       provider,
				Logger:         log,
				SamplesPath:    promptsPath,
				RequestTimeout: requestTimeout,
			})
			e := server.New()

			log.Info("starting server", "address", addr, "model_id", modelID)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
