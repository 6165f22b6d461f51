package logits

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed        uint64
	Temperature float64
	TopK        int
}

// Sampler shapes logits and draws token ids from the result. A Sampler owns
// its random stream and is not safe for concurrent use.
type Sampler struct {
	rng  *rand.Rand
	cfg  SamplerConfig
	prob []float64
	cdf  []float64
}

// NewSampler returns a sampler for cfg. Invalid temperature or top-k is
// rejected here so that Sample never sees bad parameters.
func NewSampler(cfg SamplerConfig) (*Sampler, error) {
	if err := CheckParams(cfg.Temperature, cfg.TopK); err != nil {
		return nil, err
	}
	return &Sampler{
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		cfg: cfg,
	}, nil
}

// Sample shapes a single logits row and draws one index from it.
func (s *Sampler) Sample(logits []float32) (int, error) {
	p, err := ShapeRow(s.prob, logits, s.cfg.Temperature, s.cfg.TopK)
	if err != nil {
		return 0, err
	}
	s.prob = p
	return s.Draw(p), nil
}

// SampleBatch draws one id per row. Rows are drawn in order from the same
// stream, so results depend only on the seed and the logits.
func (s *Sampler) SampleBatch(rows [][]float32) ([]int, error) {
	ids := make([]int, len(rows))
	for i, row := range rows {
		id, err := s.Sample(row)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Draw picks an index from the probability vector p by inverting its
// cumulative sum. Zero-probability entries are never selected.
func (s *Sampler) Draw(p []float64) int {
	if cap(s.cdf) < len(p) {
		s.cdf = make([]float64, len(p))
	}
	cdf := floats.CumSum(s.cdf[:len(p)], p)
	s.cdf = cdf

	r := s.rng.Float64()
	for i, c := range cdf {
		if r < c {
			return i
		}
	}
	// r landed past the rounded total; fall back to the last live entry.
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] > 0 {
			return i
		}
	}
	return len(p) - 1
}
