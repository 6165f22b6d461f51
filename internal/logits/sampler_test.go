package logits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSamplerDeterminism ensures that two samplers configured identically
// produce identical streams for the same logits.
func TestSamplerDeterminism(t *testing.T) {
	t.Parallel()
	logs := []float32{0, 1, 2, 3, 4, 5}
	cfg := SamplerConfig{Seed: 42, Temperature: 0.9, TopK: 4}
	s1, err := NewSampler(cfg)
	require.NoError(t, err)
	s2, err := NewSampler(cfg)
	require.NoError(t, err)

	for i := 0; i < 32; i++ {
		a, err := s1.Sample(logs)
		require.NoError(t, err)
		b, err := s2.Sample(logs)
		require.NoError(t, err)
		require.Equal(t, a, b, "draw %d", i)
	}
}

// TestSamplerTopKOne always returns the argmax.
func TestSamplerTopKOne(t *testing.T) {
	t.Parallel()
	s, err := NewSampler(SamplerConfig{Seed: 99, Temperature: 1, TopK: 1})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		idx, err := s.Sample([]float32{-1, 5, 3, 7, 2})
		require.NoError(t, err)
		assert.Equal(t, 3, idx)
	}
}

func TestSamplerNeverDrawsFiltered(t *testing.T) {
	t.Parallel()
	s, err := NewSampler(SamplerConfig{Seed: 7, Temperature: 1, TopK: 2})
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		idx, err := s.Sample([]float32{0, 0.1, 3, 3.2, -2})
		require.NoError(t, err)
		assert.Contains(t, []int{2, 3}, idx)
	}
}

func TestSamplerDrawFrequencies(t *testing.T) {
	t.Parallel()
	s, err := NewSampler(SamplerConfig{Seed: 1, Temperature: 1})
	require.NoError(t, err)

	p := []float64{0.2, 0, 0.5, 0.3}
	counts := make([]int, len(p))
	const n = 20000
	for i := 0; i < n; i++ {
		counts[s.Draw(p)]++
	}
	assert.Zero(t, counts[1])
	for i, want := range p {
		assert.InDelta(t, want, float64(counts[i])/n, 0.02, "index %d", i)
	}
}

func TestSamplerSampleBatch(t *testing.T) {
	t.Parallel()
	s, err := NewSampler(SamplerConfig{Seed: 3, Temperature: 1, TopK: 1})
	require.NoError(t, err)
	ids, err := s.SampleBatch([][]float32{{0, 1}, {2, 0}, {0, 0, 5}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, ids)

	_, err = s.SampleBatch([][]float32{{1}, {}})
	assert.ErrorIs(t, err, ErrDegenerateLogits)
}

func TestNewSamplerValidates(t *testing.T) {
	t.Parallel()
	_, err := NewSampler(SamplerConfig{Temperature: 0})
	assert.ErrorIs(t, err, ErrTemperature)
	_, err = NewSampler(SamplerConfig{Temperature: 1, TopK: -3})
	assert.ErrorIs(t, err, ErrTopK)
}
