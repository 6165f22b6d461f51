package main

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantserve/internal/decode"
	"github.com/samcharles93/quantserve/internal/inference"
	"github.com/samcharles93/quantserve/internal/logger"
)

var (
	logLevel   string
	logFormat  string
	debug      bool
	configFile string

	modelID     string
	modelSeed   int64
	hidden      int64
	maxContext  int64
	blockSize   int64
	noQuantized bool

	maxNewTokens int64
	temperature  float64
	topK         int64

	// fileConfig is the parsed config file, set by the root Before hook.
	fileConfig Config
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("LOG_LEVEL"),
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       "auto",
			Sources:     cli.EnvVars("LOG_FORMAT"),
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Usage:       "path to config.yaml",
		Value:       configPath(),
		Sources:     cli.EnvVars("QUANTSERVE_CONFIG"),
		Destination: &configFile,
	}
}

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model-id",
			Aliases:     []string{"m"},
			Usage:       "model identifier; also names the weight seed",
			Value:       "distilgpt2",
			Sources:     cli.EnvVars("MODEL_ID"),
			Destination: &modelID,
		},
		&cli.Int64Flag{
			Name:        "model-seed",
			Usage:       "weight seed (0 derives one from --model-id)",
			Sources:     cli.EnvVars("MODEL_SEED"),
			Destination: &modelSeed,
		},
		&cli.Int64Flag{
			Name:        "hidden",
			Usage:       "hidden width of the model",
			Value:       64,
			Destination: &hidden,
		},
		&cli.Int64Flag{
			Name:        "max-context",
			Aliases:     []string{"ctx"},
			Usage:       "max context length",
			Value:       512,
			Destination: &maxContext,
		},
		&cli.Int64Flag{
			Name:        "block-size",
			Usage:       "int8 quantization block size (0 = default)",
			Destination: &blockSize,
		},
		&cli.BoolFlag{
			Name:        "no-quantized",
			Usage:       "load only the baseline model",
			Destination: &noQuantized,
		},
	}
}

func generationFlags() []cli.Flag {
	def := decode.DefaultConfig()
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "max-new-tokens",
			Aliases:     []string{"n"},
			Usage:       "tokens to generate per request",
			Value:       int64(def.MaxNewTokens),
			Sources:     cli.EnvVars("MAX_NEW_TOKENS"),
			Destination: &maxNewTokens,
		},
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature (> 0)",
			Value:       def.Temperature,
			Sources:     cli.EnvVars("TEMPERATURE"),
			Destination: &temperature,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Aliases:     []string{"k"},
			Usage:       "top-k cutoff (0 = disabled)",
			Value:       int64(def.TopK),
			Sources:     cli.EnvVars("TOP_K"),
			Destination: &topK,
		},
	}
}

func genDefaults() inference.GenDefaults {
	n := int(maxNewTokens)
	t := temperature
	k := int(topK)
	return inference.GenDefaults{MaxNewTokens: &n, Temperature: &t, TopK: &k}
}

// checkGenDefaults rejects generation flags no request could decode with.
func checkGenDefaults(d inference.GenDefaults) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid generation defaults (--max-new-tokens, --temperature, --top-k): %w", err)
	}
	return nil
}

func modelLoader(log logger.Logger) inference.Loader {
	return inference.Loader{
		ModelID:       modelID,
		Seed:          modelSeed,
		Hidden:        int(hidden),
		MaxContext:    int(maxContext),
		BlockSize:     int(blockSize),
		SkipQuantized: noQuantized,
		Defaults:      genDefaults(),
		Logger:        log,
	}
}
