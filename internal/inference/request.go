package inference

import "github.com/samcharles93/quantserve/internal/decode"

// RequestOptions carries per-request overrides. Nil fields fall back to the
// host defaults and then to decode.DefaultConfig.
type RequestOptions struct {
	Prompt string

	MaxNewTokens *int
	Temperature  *float64
	TopK         *int
	Seed         *int64
}

// GenDefaults are host-level generation defaults, usually from flags or the
// environment.
type GenDefaults struct {
	MaxNewTokens *int
	Temperature  *float64
	TopK         *int
}

// Validate reports set defaults that no request could decode with, as an
// ErrInvalidParameter *decode.Error.
func (d GenDefaults) Validate() error {
	return decode.ResolveConfig(decode.Options{
		MaxNewTokens: d.MaxNewTokens,
		Temperature:  d.Temperature,
		TopK:         d.TopK,
	}, decode.DefaultConfig()).Validate()
}

func ResolveRequest(opts RequestOptions, defaults GenDefaults) Request {
	base := decode.DefaultConfig()
	req := Request{
		Prompt:       opts.Prompt,
		MaxNewTokens: base.MaxNewTokens,
		Temperature:  base.Temperature,
		TopK:         base.TopK,
		Seed:         -1,
	}

	if defaults.MaxNewTokens != nil {
		req.MaxNewTokens = *defaults.MaxNewTokens
	}
	if defaults.Temperature != nil {
		req.Temperature = *defaults.Temperature
	}
	if defaults.TopK != nil {
		req.TopK = *defaults.TopK
	}

	if opts.MaxNewTokens != nil {
		req.MaxNewTokens = *opts.MaxNewTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopK != nil {
		req.TopK = *opts.TopK
	}
	if opts.Seed != nil {
		req.Seed = *opts.Seed
	}

	return req
}

// DecodeConfig returns the decode settings of r.
func (r Request) DecodeConfig() decode.Config {
	return decode.Config{
		MaxNewTokens: r.MaxNewTokens,
		Temperature:  r.Temperature,
		TopK:         r.TopK,
	}
}
