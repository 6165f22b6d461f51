package decode

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/quantserve/internal/logger"
	"github.com/samcharles93/quantserve/internal/logits"
)

// Decoder extends prompts through an Oracle. It is safe for concurrent use:
// every Decode call gets its own cache and random stream seeded from Seed.
type Decoder struct {
	oracle Oracle
	seed   uint64
	log    logger.Logger
}

type Option func(*Decoder)

// WithLogger sets the logger used for per-decode debug records.
func WithLogger(l logger.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.log = l
		}
	}
}

func NewDecoder(oracle Oracle, seed uint64, opts ...Option) *Decoder {
	d := &Decoder{
		oracle: oracle,
		seed:   seed,
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode appends exactly cfg.MaxNewTokens sampled ids to every row of prompt.
// Validation happens before the first oracle call. On any failure the
// partial result is dropped and a *Error is returned.
func (d *Decoder) Decode(prompt Tokens, cfg Config) (Tokens, error) {
	if d.oracle == nil {
		return Tokens{}, paramError(errors.New("oracle is required"))
	}
	if err := cfg.Validate(); err != nil {
		return Tokens{}, err
	}
	if err := prompt.Validate(); err != nil {
		return Tokens{}, err
	}

	sampler, err := logits.NewSampler(logits.SamplerConfig{
		Seed:        d.seed,
		Temperature: cfg.Temperature,
		TopK:        cfg.TopK,
	})
	if err != nil {
		return Tokens{}, paramError(err)
	}

	rows := prompt.Rows()
	batch := len(rows)
	for i := range rows {
		rows[i] = append(make([]int, 0, len(rows[i])+cfg.MaxNewTokens), rows[i]...)
	}

	start := time.Now()
	d.log.Debug("decode start",
		"batch", batch,
		"prompt_len", prompt.Shape[1],
		"max_new_tokens", cfg.MaxNewTokens,
		"temperature", cfg.Temperature,
		"top_k", cfg.TopK,
	)

	var cache Cache
	last := make([]int, batch)
	for step := 0; step < cfg.MaxNewTokens; step++ {
		for i, row := range rows {
			last[i] = row[len(row)-1]
		}

		out, next, err := d.oracle.Step(last, cache)
		if err != nil {
			return Tokens{}, oracleError(step, err)
		}
		if err := checkLogits(out, batch); err != nil {
			return Tokens{}, oracleError(step, err)
		}
		cache = next

		ids, err := sampler.SampleBatch(out)
		if err != nil {
			return Tokens{}, oracleError(step, err)
		}
		for i, id := range ids {
			rows[i] = append(rows[i], id)
		}
	}

	d.log.Debug("decode done",
		"batch", batch,
		"generated", cfg.MaxNewTokens,
		"elapsed", time.Since(start),
	)

	result, err := NewBatch(rows)
	if err != nil {
		return Tokens{}, err
	}
	return result, nil
}

func checkLogits(out [][]float32, batch int) error {
	if len(out) != batch {
		return fmt.Errorf("oracle returned %d logits rows for batch %d", len(out), batch)
	}
	vocab := len(out[0])
	if vocab == 0 {
		return errors.New("oracle returned empty logits")
	}
	for i, row := range out[1:] {
		if len(row) != vocab {
			return fmt.Errorf("oracle returned ragged logits: row %d has %d entries, want %d", i+1, len(row), vocab)
		}
	}
	return nil
}

// Decode runs a single decode with a fresh Decoder.
func Decode(oracle Oracle, prompt Tokens, cfg Config, seed uint64) (Tokens, error) {
	return NewDecoder(oracle, seed).Decode(prompt, cfg)
}

// DecodeAll decodes independent prompts in parallel against one shared
// oracle. Prompt i is sampled with seed+i. The first failure cancels prompts
// that have not started yet; decodes already running finish their steps.
func DecodeAll(ctx context.Context, oracle Oracle, prompts []Tokens, cfg Config, seed uint64, opts ...Option) ([]Tokens, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	out := make([]Tokens, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, prompt := range prompts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := NewDecoder(oracle, seed+uint64(i), opts...).Decode(prompt, cfg)
			if err != nil {
				return fmt.Errorf("prompt %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
