package decode

import (
	"fmt"

	"github.com/samcharles93/quantserve/internal/logits"
)

// Config controls one decode call.
type Config struct {
	MaxNewTokens int
	// Temperature divides the logits before softmax; 1 leaves them as is.
	Temperature float64
	// TopK keeps only the k most likely tokens; 0 disables the filter.
	TopK int
}

// DefaultConfig returns the built-in generation defaults.
func DefaultConfig() Config {
	return Config{MaxNewTokens: 64, Temperature: 0.8, TopK: 40}
}

// Options carries caller overrides; nil fields fall back to the defaults.
type Options struct {
	MaxNewTokens *int
	Temperature  *float64
	TopK         *int
}

// ResolveConfig applies opts on top of defaults. It does not validate the
// result; Decode does that before touching the oracle.
func ResolveConfig(opts Options, defaults Config) Config {
	cfg := defaults
	if opts.MaxNewTokens != nil {
		cfg.MaxNewTokens = *opts.MaxNewTokens
	}
	if opts.Temperature != nil {
		cfg.Temperature = *opts.Temperature
	}
	if opts.TopK != nil {
		cfg.TopK = *opts.TopK
	}
	return cfg
}

// Validate checks the config and returns an ErrInvalidParameter *Error.
func (c Config) Validate() error {
	if c.MaxNewTokens <= 0 {
		return paramError(fmt.Errorf("max_new_tokens must be > 0, got %d", c.MaxNewTokens))
	}
	if err := logits.CheckParams(c.Temperature, c.TopK); err != nil {
		return paramError(err)
	}
	return nil
}
