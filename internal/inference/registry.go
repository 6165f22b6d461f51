package inference

import (
	"context"
	"errors"
	"fmt"
)

// Registry holds the loaded engines and the host generation defaults.
type Registry struct {
	Quantized Engine
	Baseline  Engine
	Defaults  GenDefaults
}

// Engine returns the engine for variant.
func (r *Registry) Engine(variant string) (Engine, error) {
	var e Engine
	switch variant {
	case VariantQuantized:
		e = r.Quantized
	case VariantBaseline:
		e = r.Baseline
	default:
		return nil, fmt.Errorf("unknown model variant %q", variant)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, variant)
	}
	return e, nil
}

// Has reports whether variant is loaded.
func (r *Registry) Has(variant string) bool {
	_, err := r.Engine(variant)
	return err == nil
}

// Preferred is the quantized variant when loaded, else the baseline.
func (r *Registry) Preferred() string {
	if r.Quantized != nil {
		return VariantQuantized
	}
	return VariantBaseline
}

// Generate resolves opts against the registry defaults and runs variant.
func (r *Registry) Generate(ctx context.Context, variant string, opts RequestOptions) (*GenerationResponse, error) {
	e, err := r.Engine(variant)
	if err != nil {
		return nil, err
	}
	req := ResolveRequest(opts, r.Defaults)
	res, err := e.Generate(ctx, &req)
	if err != nil {
		return nil, err
	}
	return NewGenerationResponse(res, e.Metadata()), nil
}

// GenerateAll runs prompts on variant with shared settings. Engines that
// implement BatchEngine decode in parallel; others run one prompt at a time
// with seed+i for prompt i.
func (r *Registry) GenerateAll(ctx context.Context, variant string, prompts []string, opts RequestOptions) ([]*GenerationResponse, error) {
	e, err := r.Engine(variant)
	if err != nil {
		return nil, err
	}
	req := ResolveRequest(opts, r.Defaults)

	var results []*Result
	if be, ok := e.(BatchEngine); ok {
		if results, err = be.GenerateAll(ctx, prompts, &req); err != nil {
			return nil, err
		}
	} else {
		results = make([]*Result, len(prompts))
		for i, p := range prompts {
			one := req
			one.Prompt = p
			if req.Seed >= 0 {
				one.Seed = req.Seed + int64(i)
			}
			if results[i], err = e.Generate(ctx, &one); err != nil {
				return nil, fmt.Errorf("prompt %d: %w", i, err)
			}
		}
	}

	meta := e.Metadata()
	out := make([]*GenerationResponse, len(results))
	for i, res := range results {
		out[i] = NewGenerationResponse(res, meta)
	}
	return out, nil
}

// Metadata returns the metadata of each loaded engine, nil when absent.
func (r *Registry) Metadata() (quantized, baseline *Metadata) {
	if r.Quantized != nil {
		m := r.Quantized.Metadata()
		quantized = &m
	}
	if r.Baseline != nil {
		m := r.Baseline.Metadata()
		baseline = &m
	}
	return quantized, baseline
}

func (r *Registry) Close() error {
	var errs []error
	for _, e := range []Engine{r.Quantized, r.Baseline} {
		if e == nil {
			continue
		}
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
