package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantserve/internal/evaluation"
	"github.com/samcharles93/quantserve/internal/harness"
	"github.com/samcharles93/quantserve/internal/inference"
	"github.com/samcharles93/quantserve/internal/logger"
)

func quantizeCmd() *cli.Command {
	return &cli.Command{
		Name:  "quantize",
		Usage: "Build the model, quantize it to int8 and print the size summary",
		Flags: modelFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			loader := modelLoader(logger.FromContext(ctx))
			loader.SkipQuantized = false
			return runQuantize(ctx, os.Stdout, loader)
		},
	}
}

func runQuantize(ctx context.Context, w io.Writer, loader inference.Loader) error {
	reg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("quantize: %w", err)
	}
	defer func() { _ = reg.Close() }()

	q, b := reg.Metadata()
	summary := evaluation.NewQuantizationSummary(*q, b)
	harness.WriteMetadata(w, &harness.Metadata{Quantized: q, Baseline: b, Quantization: &summary})
	return nil
}
