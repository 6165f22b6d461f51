// Package evaluation runs a fixed prompt set through the quantized and
// baseline engines and summarises latency, throughput and reference hits.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/quantserve/internal/inference"
)

var ErrNoSamples = errors.New("at least one benchmark sample is required")

// ErrInvalidSamples reports a malformed sample file.
var ErrInvalidSamples = errors.New("invalid benchmark file")

type BenchmarkSample struct {
	Prompt             string  `json:"prompt"`
	ReferenceSubstring *string `json:"reference_substring,omitempty"`
}

type SampleReport struct {
	Prompt                  string                        `json:"prompt"`
	Quantized               *inference.GenerationResponse `json:"quantized"`
	Baseline                *inference.GenerationResponse `json:"baseline"`
	ReferenceMatchQuantized *bool                         `json:"reference_match_quantized"`
	ReferenceMatchBaseline  *bool                         `json:"reference_match_baseline"`
}

type AggregateMetrics struct {
	QuantizedAvgLatencyMS       float64  `json:"quantized_avg_latency_ms"`
	QuantizedAvgTokensPerS      float64  `json:"quantized_avg_tokens_per_s"`
	BaselineAvgLatencyMS        *float64 `json:"baseline_avg_latency_ms"`
	BaselineAvgTokensPerS       *float64 `json:"baseline_avg_tokens_per_s"`
	QuantizedReferenceMatchRate *float64 `json:"quantized_reference_match_rate"`
	BaselineReferenceMatchRate  *float64 `json:"baseline_reference_match_rate"`
}

type EvaluationReport struct {
	Samples   []SampleReport   `json:"samples"`
	Aggregate AggregateMetrics `json:"aggregate"`
}

// Generator is the subset of inference.Registry the benchmark needs.
type Generator interface {
	Generate(ctx context.Context, variant string, opts inference.RequestOptions) (*inference.GenerationResponse, error)
	Has(variant string) bool
}

// RunBenchmark generates every sample with the quantized engine and, when
// loaded, the baseline. Any generation failure aborts the run.
func RunBenchmark(ctx context.Context, gen Generator, opts inference.RequestOptions, samples []BenchmarkSample) (*EvaluationReport, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	reports := make([]SampleReport, 0, len(samples))
	for i, sample := range samples {
		req := opts
		req.Prompt = sample.Prompt

		quantized, err := gen.Generate(ctx, inference.VariantQuantized, req)
		if err != nil {
			return nil, fmt.Errorf("sample %d quantized: %w", i, err)
		}
		var baseline *inference.GenerationResponse
		if gen.Has(inference.VariantBaseline) {
			baseline, err = gen.Generate(ctx, inference.VariantBaseline, req)
			if err != nil {
				return nil, fmt.Errorf("sample %d baseline: %w", i, err)
			}
		}

		report := SampleReport{
			Prompt:    sample.Prompt,
			Quantized: quantized,
			Baseline:  baseline,
		}
		if ref := sample.ReferenceSubstring; ref != nil {
			m := Matches(quantized.Completion, *ref)
			report.ReferenceMatchQuantized = &m
			if baseline != nil {
				b := Matches(baseline.Completion, *ref)
				report.ReferenceMatchBaseline = &b
			}
		}
		reports = append(reports, report)
	}

	return &EvaluationReport{
		Samples:   reports,
		Aggregate: Summarize(reports),
	}, nil
}

// Matches is a case-insensitive substring test.
func Matches(completion, reference string) bool {
	return strings.Contains(strings.ToLower(completion), strings.ToLower(reference))
}

func Summarize(reports []SampleReport) AggregateMetrics {
	var (
		qLatency, qTPS []float64
		bLatency, bTPS []float64
		qMatch, bMatch []bool
	)
	for _, r := range reports {
		qLatency = append(qLatency, float64(r.Quantized.TotalTimeMS))
		qTPS = append(qTPS, r.Quantized.TokensPerSecond)
		if r.Baseline != nil {
			bLatency = append(bLatency, float64(r.Baseline.TotalTimeMS))
			bTPS = append(bTPS, r.Baseline.TokensPerSecond)
		}
		if r.ReferenceMatchQuantized != nil {
			qMatch = append(qMatch, *r.ReferenceMatchQuantized)
		}
		if r.ReferenceMatchBaseline != nil {
			bMatch = append(bMatch, *r.ReferenceMatchBaseline)
		}
	}

	agg := AggregateMetrics{
		QuantizedAvgLatencyMS:       mean(qLatency),
		QuantizedAvgTokensPerS:      mean(qTPS),
		QuantizedReferenceMatchRate: matchRate(qMatch),
		BaselineReferenceMatchRate:  matchRate(bMatch),
	}
	if len(bLatency) > 0 {
		l, t := mean(bLatency), mean(bTPS)
		agg.BaselineAvgLatencyMS = &l
		agg.BaselineAvgTokensPerS = &t
	}
	return agg
}

// mean is stat.Mean with an empty slice reported as 0.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func matchRate(xs []bool) *float64 {
	if len(xs) == 0 {
		return nil
	}
	hits := 0
	for _, x := range xs {
		if x {
			hits++
		}
	}
	rate := float64(hits) / float64(len(xs))
	return &rate
}

// LoadSamples reads a JSON array of {"prompt", "reference_substring"}
// objects. Items without a string prompt are rejected; a non-string
// reference is ignored.
func LoadSamples(path string) ([]BenchmarkSample, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSamples(raw)
}

func ParseSamples(raw []byte) ([]BenchmarkSample, error) {
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		var anyValue any
		if json.Unmarshal(raw, &anyValue) == nil {
			return nil, fmt.Errorf("%w: must be a JSON array of objects", ErrInvalidSamples)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSamples, err)
	}

	samples := make([]BenchmarkSample, 0, len(items))
	for i, item := range items {
		prompt, ok := item["prompt"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: item %d missing string field 'prompt'", ErrInvalidSamples, i)
		}
		sample := BenchmarkSample{Prompt: prompt}
		if ref, ok := item["reference_substring"].(string); ok {
			sample.ReferenceSubstring = &ref
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func FallbackSamples() []BenchmarkSample {
	ref := func(s string) *string { return &s }
	return []BenchmarkSample{
		{
			Prompt:             "Explain the benefits of quantizing a transformer model to int8 precision.",
			ReferenceSubstring: ref("quant"),
		},
		{
			Prompt:             "Summarize the Go garbage collector in one sentence.",
			ReferenceSubstring: ref("garbage"),
		},
		{
			Prompt:             "Write a haiku about efficient machine learning inference.",
			ReferenceSubstring: ref("haiku"),
		},
	}
}

// QuantizationSummary compares the footprint of the two variants.
type QuantizationSummary struct {
	BaselineSizeBytes    *int64   `json:"baseline_size_bytes"`
	QuantizedSizeBytes   int64    `json:"quantized_size_bytes"`
	SizeReductionPercent *float64 `json:"size_reduction_percent"`
}

func NewQuantizationSummary(quantized inference.Metadata, baseline *inference.Metadata) QuantizationSummary {
	s := QuantizationSummary{QuantizedSizeBytes: quantized.SizeBytes}
	if baseline == nil {
		return s
	}
	size := baseline.SizeBytes
	s.BaselineSizeBytes = &size
	reduction := 0.0
	if size > 0 {
		diff := max(size-quantized.SizeBytes, 0)
		reduction = float64(diff) / float64(size) * 100
	}
	s.SizeReductionPercent = &reduction
	return s
}
