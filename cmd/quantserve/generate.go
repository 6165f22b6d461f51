package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantserve/internal/inference"
	"github.com/samcharles93/quantserve/internal/logger"
)

func generateCmd() *cli.Command {
	var (
		baseline bool
		seed     int64
		asJSON   bool
		batch    bool
	)

	return &cli.Command{
		Name:      "generate",
		Aliases:   []string{"gen"},
		Usage:     "Generate completions locally without starting the server",
		ArgsUsage: "<prompt> [prompt...]",
		Flags: append(append(modelFlags(), generationFlags()...),
			&cli.BoolFlag{
				Name:        "baseline",
				Usage:       "use the float32 baseline instead of the quantized model",
				Destination: &baseline,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Aliases:     []string{"s"},
				Usage:       "sampling seed (-1 = time based)",
				Value:       -1,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "batch",
				Usage:       "treat each argument as its own prompt and decode them in parallel",
				Destination: &batch,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the response as JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			log := logger.FromContext(ctx)

			args := cmd.Args().Slice()
			prompts := []string{strings.Join(args, " ")}
			if batch {
				prompts = args
			}
			if len(prompts) == 0 || strings.TrimSpace(prompts[0]) == "" {
				return cli.Exit("generate: a prompt is required", 2)
			}
			if err := checkGenDefaults(genDefaults()); err != nil {
				return cli.Exit(err.Error(), 2)
			}

			loader := modelLoader(log)
			if baseline {
				loader.SkipQuantized = true
			}
			reg, err := loader.Load(ctx)
			if err != nil {
				return fmt.Errorf("load models: %w", err)
			}
			defer func() { _ = reg.Close() }()

			variant := reg.Preferred()
			if baseline {
				variant = inference.VariantBaseline
			}
			resps, err := reg.GenerateAll(ctx, variant, prompts, inference.RequestOptions{Seed: &seed})
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			return printResponses(os.Stdout, log, resps, asJSON)
		},
	}
}

func printResponses(w io.Writer, log logger.Logger, resps []*inference.GenerationResponse, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(resps) == 1 {
			return enc.Encode(resps[0])
		}
		return enc.Encode(resps)
	}
	for _, resp := range resps {
		fmt.Fprintln(w, resp.Prompt+resp.Completion)
		log.Info("generation done",
			"model", resp.Model.Name,
			"tokens", resp.TokensGenerated,
			"total_time_ms", resp.TotalTimeMS,
			"tps", fmt.Sprintf("%.2f", resp.TokensPerSecond),
		)
	}
	return nil
}
