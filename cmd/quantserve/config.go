package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the optional config file (~/.config/quantserve/config.yaml).
// Pointer fields distinguish "not set" from zero values. Values apply only
// where the matching flag was not given on the command line or through the
// environment.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ModelID     string `yaml:"model_id"`
	ModelSeed   *int64 `yaml:"model_seed"`
	Hidden      *int64 `yaml:"hidden"`
	MaxContext  *int64 `yaml:"max_context"`
	BlockSize   *int64 `yaml:"block_size"`
	NoQuantized *bool  `yaml:"no_quantized"`

	MaxNewTokens *int64   `yaml:"max_new_tokens"`
	Temperature  *float64 `yaml:"temperature"`
	TopK         *int64   `yaml:"top_k"`

	ServerAddress string `yaml:"server_address"`
	PromptsPath   string `yaml:"eval_prompts_path"`

	APIURL      string `yaml:"api_url"`
	TimeoutSecs *int64 `yaml:"eval_timeout_secs"`
	Warmup      *int64 `yaml:"eval_warmup_iters"`
	Runs        *int64 `yaml:"eval_benchmark_iters"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "quantserve", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyModelConfig fills the model and generation flag variables.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.ModelID != "" && !c.IsSet("model-id") {
		modelID = cfg.ModelID
	}
	setInt64(c, "model-seed", cfg.ModelSeed, &modelSeed)
	setInt64(c, "hidden", cfg.Hidden, &hidden)
	setInt64(c, "max-context", cfg.MaxContext, &maxContext)
	setInt64(c, "block-size", cfg.BlockSize, &blockSize)
	if cfg.NoQuantized != nil && !c.IsSet("no-quantized") {
		noQuantized = *cfg.NoQuantized
	}
	setInt64(c, "max-new-tokens", cfg.MaxNewTokens, &maxNewTokens)
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		temperature = *cfg.Temperature
	}
	setInt64(c, "top-k", cfg.TopK, &topK)
}

func applyServeConfig(c *cli.Command, cfg Config, addr, promptsPath *string) {
	applyModelConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.PromptsPath != "" && !c.IsSet("prompts") {
		*promptsPath = cfg.PromptsPath
	}
}

func applyEvaluateConfig(c *cli.Command, cfg Config, url *string, timeoutSecs, warmup, runs *int64) {
	if cfg.APIURL != "" && !c.IsSet("url") {
		*url = cfg.APIURL
	}
	setInt64(c, "timeout-secs", cfg.TimeoutSecs, timeoutSecs)
	setInt64(c, "warmup", cfg.Warmup, warmup)
	setInt64(c, "runs", cfg.Runs, runs)
}

func setInt64(c *cli.Command, flag string, v *int64, dst *int64) {
	if v != nil && !c.IsSet(flag) {
		*dst = *v
	}
}
