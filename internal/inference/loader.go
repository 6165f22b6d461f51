package inference

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/samcharles93/quantserve/internal/logger"
	"github.com/samcharles93/quantserve/internal/tokenizer"
	"github.com/samcharles93/quantserve/internal/toy"
	"github.com/samcharles93/quantserve/pkg/quant"
)

const (
	VariantBaseline  = "baseline"
	VariantQuantized = "quantized"
)

// Loader builds the baseline model and, unless SkipQuantized is set, its
// int8 counterpart.
type Loader struct {
	ModelID string
	// Seed fixes the weights. Zero derives a seed from ModelID so each
	// model id names one fixed set of weights.
	Seed          int64
	Hidden        int
	MaxContext    int
	BlockSize     int
	SkipQuantized bool
	Defaults      GenDefaults
	Logger        logger.Logger
}

func (l Loader) Load(ctx context.Context) (*Registry, error) {
	if strings.TrimSpace(l.ModelID) == "" {
		return nil, fmt.Errorf("model id is required")
	}
	if err := l.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("generation defaults: %w", err)
	}
	log := l.Logger
	if log == nil {
		log = logger.Discard()
	}
	hidden := l.Hidden
	if hidden <= 0 {
		hidden = 64
	}
	maxContext := l.MaxContext
	if maxContext <= 0 {
		maxContext = 512
	}
	seed := l.Seed
	if seed == 0 {
		seed = SeedFor(l.ModelID)
	}

	start := time.Now()
	tok := tokenizer.Bytes{}
	lm, err := toy.New(toy.Config{
		Vocab:      tok.VocabSize(),
		Hidden:     hidden,
		MaxContext: maxContext,
		Seed:       seed,
	})
	if err != nil {
		return nil, fmt.Errorf("build baseline: %w", err)
	}
	reg := &Registry{
		Defaults: l.Defaults,
		Baseline: NewEngine(Metadata{
			Name:      VariantBaseline,
			Quantized: false,
			DType:     lm.DType(),
			SizeBytes: lm.SizeBytes(),
		}, lm, tok, maxContext, log),
	}
	log.Info("baseline model ready", "model_id", l.ModelID, "size_bytes", lm.SizeBytes())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !l.SkipQuantized {
		q, err := toy.Quantize(lm, quant.Int8{BlockSize: l.BlockSize})
		if err != nil {
			return nil, fmt.Errorf("quantize: %w", err)
		}
		reg.Quantized = NewEngine(Metadata{
			Name:      VariantQuantized,
			Quantized: true,
			DType:     q.DType(),
			SizeBytes: q.SizeBytes(),
		}, q, tok, maxContext, log)
		log.Info("quantized model ready", "model_id", l.ModelID, "size_bytes", q.SizeBytes())
	}

	log.Debug("models loaded", "elapsed", time.Since(start))
	return reg, nil
}

// SeedFor hashes a model id into a positive weight seed.
func SeedFor(modelID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(modelID))
	return int64(h.Sum64()>>1) | 1
}
