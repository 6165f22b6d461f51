package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantserve/internal/harness"
	"github.com/samcharles93/quantserve/internal/logger"
)

func evaluateCmd() *cli.Command {
	var (
		url         string
		timeoutSecs int64
		warmup      int64
		runs        int64
		maxTokens   int64
		waitTries   int64
		skipQuality bool
	)

	return &cli.Command{
		Name:  "evaluate",
		Usage: "Benchmark speed and sample output quality of a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "url",
				Usage:       "base URL of the server",
				Value:       "http://127.0.0.1:8080",
				Sources:     cli.EnvVars("API_URL"),
				Destination: &url,
			},
			&cli.Int64Flag{
				Name:        "timeout-secs",
				Usage:       "per-request timeout in seconds",
				Value:       30,
				Sources:     cli.EnvVars("EVAL_TIMEOUT_SECS"),
				Destination: &timeoutSecs,
			},
			&cli.Int64Flag{
				Name:        "warmup",
				Usage:       "discarded runs per prompt",
				Value:       int64(harness.DefaultSpeedConfig().Warmup),
				Sources:     cli.EnvVars("EVAL_WARMUP_ITERS"),
				Destination: &warmup,
			},
			&cli.Int64Flag{
				Name:        "runs",
				Usage:       "timed runs per prompt",
				Value:       int64(harness.DefaultSpeedConfig().Runs),
				Sources:     cli.EnvVars("EVAL_BENCHMARK_ITERS"),
				Destination: &runs,
			},
			&cli.Int64Flag{
				Name:        "max-tokens",
				Usage:       "tokens per speed run",
				Value:       int64(harness.DefaultSpeedConfig().MaxTokens),
				Destination: &maxTokens,
			},
			&cli.Int64Flag{
				Name:        "wait",
				Usage:       "health check attempts before giving up",
				Value:       10,
				Destination: &waitTries,
			},
			&cli.BoolFlag{
				Name:        "skip-quality",
				Usage:       "skip the quality samples",
				Destination: &skipQuality,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyEvaluateConfig(cmd, fileConfig, &url, &timeoutSecs, &warmup, &runs)
			if runs <= 0 {
				return cli.Exit("evaluate: --runs must be positive", 2)
			}
			cfg := harness.SpeedConfig{Warmup: int(max(warmup, 0)), Runs: int(runs), MaxTokens: int(maxTokens)}
			client := harness.NewClient(url, time.Duration(timeoutSecs)*time.Second)
			return runEvaluation(ctx, os.Stdout, client, cfg, uint(max(waitTries, 1)), skipQuality)
		},
	}
}

func runEvaluation(ctx context.Context, w io.Writer, client *harness.Client, cfg harness.SpeedConfig, attempts uint, skipQuality bool) error {
	log := logger.FromContext(ctx)

	log.Info("waiting for server", "url", client.BaseURL)
	if err := client.WaitHealthy(ctx, attempts, 500*time.Millisecond); err != nil {
		return cli.Exit(fmt.Sprintf("server at %s is not healthy: %v", client.BaseURL, err), 1)
	}

	meta, err := client.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	harness.WriteMetadata(w, meta)
	fmt.Fprintln(w)

	log.Info("running speed benchmark", "prompts", len(harness.TestPrompts), "warmup", cfg.Warmup, "runs", cfg.Runs)
	speed := harness.SpeedBenchmark(ctx, client, harness.TestPrompts, cfg)
	harness.WriteSpeedReport(w, speed)

	if !skipQuality {
		fmt.Fprintln(w)
		harness.WriteQuality(w, harness.QualityTest(ctx, client, harness.TestPrompts))
	}
	return nil
}
