package harness

import (
	"context"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/quantserve/internal/logger"
)

// TestPrompts is the default prompt set for speed and quality runs.
var TestPrompts = []string{
	"Artificial intelligence is",
	"The future of technology",
	"Machine learning enables",
	"Neural networks are used for",
	"Deep learning models can",
	"Natural language processing helps",
	"Computer vision allows",
	"Robotics and automation",
}

// Generator issues one generation. *Client implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) GenerationResult
}

type SpeedConfig struct {
	Warmup    int
	Runs      int
	MaxTokens int
}

func DefaultSpeedConfig() SpeedConfig {
	return SpeedConfig{Warmup: 1, Runs: 5, MaxTokens: 20}
}

type Run struct {
	LatencyMS float64
	TPS       float64
}

type PromptStats struct {
	Prompt       string
	Runs         []Run
	Errors       []string
	AvgLatencyMS float64
	AvgTPS       float64
}

type SpeedReport struct {
	Prompts []PromptStats

	TotalRuns     int
	MeanLatencyMS float64
	StdLatencyMS  float64
	MeanTPS       float64
	StdTPS        float64
	MinLatencyMS  float64
	MaxLatencyMS  float64
}

// SpeedBenchmark runs cfg.Warmup discarded generations and then cfg.Runs
// timed ones per prompt. Failed runs are recorded and left out of the
// statistics.
func SpeedBenchmark(ctx context.Context, gen Generator, prompts []string, cfg SpeedConfig) SpeedReport {
	log := logger.FromContext(ctx)
	var (
		report    SpeedReport
		latencies []float64
		tps       []float64
	)

	for i, prompt := range prompts {
		log.Info("benchmarking prompt", "index", i+1, "of", len(prompts), "prompt", prompt)
		for w := 0; w < cfg.Warmup; w++ {
			gen.Generate(ctx, prompt, cfg.MaxTokens)
		}

		ps := PromptStats{Prompt: prompt}
		var pl, pt []float64
		for r := 0; r < cfg.Runs; r++ {
			res := gen.Generate(ctx, prompt, cfg.MaxTokens)
			if !res.OK() {
				ps.Errors = append(ps.Errors, res.Error)
				continue
			}
			run := Run{LatencyMS: float64(res.TotalTimeMS), TPS: res.TokensPerSecond}
			ps.Runs = append(ps.Runs, run)
			pl = append(pl, run.LatencyMS)
			pt = append(pt, run.TPS)
			log.Debug("run", "n", r+1, "latency_ms", run.LatencyMS, "tps", run.TPS)
		}
		if len(pl) > 0 {
			ps.AvgLatencyMS = stat.Mean(pl, nil)
			ps.AvgTPS = stat.Mean(pt, nil)
			latencies = append(latencies, pl...)
			tps = append(tps, pt...)
		}
		report.Prompts = append(report.Prompts, ps)
	}

	report.TotalRuns = len(latencies)
	if len(latencies) > 0 {
		report.MeanLatencyMS, report.StdLatencyMS = meanStd(latencies)
		report.MeanTPS, report.StdTPS = meanStd(tps)
		report.MinLatencyMS = floats.Min(latencies)
		report.MaxLatencyMS = floats.Max(latencies)
	}
	return report
}

// meanStd returns the mean and sample standard deviation; the deviation of
// a single value is 0.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) < 2 {
		return stat.Mean(xs, nil), 0
	}
	return stat.MeanStdDev(xs, nil)
}

type QualityResult struct {
	Prompt string
	Result GenerationResult
}

// QualityTest generates longer completions for the first four prompts.
func QualityTest(ctx context.Context, gen Generator, prompts []string) []QualityResult {
	const (
		qualityPrompts = 4
		qualityTokens  = 40
	)
	prompts = prompts[:min(len(prompts), qualityPrompts)]
	out := make([]QualityResult, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, QualityResult{Prompt: p, Result: gen.Generate(ctx, p, qualityTokens)})
	}
	return out
}
