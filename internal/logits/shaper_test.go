package logits

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func naiveSoftmax(x []float32) []float64 {
	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		out[i] = math.Exp(float64(v))
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func TestShapeRowNeutralIsSoftmax(t *testing.T) {
	t.Parallel()
	row := []float32{0.5, -1, 2, 0, 1.25}
	got, err := ShapeRow(nil, row, 1, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, naiveSoftmax(row), got, 1e-9)
}

func TestShapeRowTopKKeepsTies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		row  []float32
		k    int
		live []bool
	}{
		{"distinct", []float32{1, 4, 2, 3}, 2, []bool{false, true, false, true}},
		{"tie at threshold", []float32{5, 3, 3, 1}, 2, []bool{true, true, true, false}},
		{"k is one", []float32{0, 9, 1}, 1, []bool{false, true, false}},
		{"k equals vocab", []float32{1, 2, 3}, 3, []bool{true, true, true}},
		{"k above vocab", []float32{1, 2, 3}, 10, []bool{true, true, true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ShapeRow(nil, tc.row, 1, tc.k)
			require.NoError(t, err)
			for i, p := range got {
				if tc.live[i] {
					assert.Greater(t, p, 0.0, "index %d should survive", i)
				} else {
					assert.Zero(t, p, "index %d should be filtered", i)
				}
			}
		})
	}
}

func TestShapeRowSumsToOne(t *testing.T) {
	t.Parallel()
	rows := [][]float32{
		{100, 99, -50, 0},
		{-1e4, -1e4 + 1, -1e4 + 2},
		{3},
		{0, 0, 0, 0, 0, 0},
	}
	for _, temp := range []float64{0.1, 0.8, 1, 3.5} {
		for _, k := range []int{0, 1, 2, 40} {
			shaped, err := Shape(rows, temp, k)
			require.NoError(t, err)
			for _, p := range shaped {
				assert.InDelta(t, 1.0, floats.Sum(p), 1e-6, "temp=%v k=%d", temp, k)
			}
		}
	}
}

func TestShapeRowLowerTemperatureSharpens(t *testing.T) {
	t.Parallel()
	row := []float32{1, 2, 0.5, 1.5}
	prev := 0.0
	for _, temp := range []float64{4, 2, 1, 0.5, 0.1} {
		p, err := ShapeRow(nil, row, temp, 0)
		require.NoError(t, err)
		top := floats.Max(p)
		assert.Greater(t, top, prev, "temp=%v", temp)
		prev = top
	}
}

func TestShapeRowPositiveInfinity(t *testing.T) {
	t.Parallel()
	inf := float32(math.Inf(1))
	got, err := ShapeRow(nil, []float32{inf, 3, inf, -1}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0, 0.5, 0}, got)
}

func TestShapeRowDegenerate(t *testing.T) {
	t.Parallel()
	ninf := float32(math.Inf(-1))
	nan := float32(math.NaN())

	for name, row := range map[string][]float32{
		"empty":    {},
		"all -inf": {ninf, ninf},
		"nan":      {1, nan, 2},
	} {
		_, err := ShapeRow(nil, row, 1, 0)
		assert.ErrorIs(t, err, ErrDegenerateLogits, name)
	}
}

func TestShapeRowMinusInfinityIsZero(t *testing.T) {
	t.Parallel()
	got, err := ShapeRow(nil, []float32{float32(math.Inf(-1)), 0, 0}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got[0])
	assert.InDelta(t, 0.5, got[1], 1e-12)
}

func TestShapeRejectsBadParams(t *testing.T) {
	t.Parallel()
	row := [][]float32{{1, 2}}

	for _, temp := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Shape(row, temp, 0)
		assert.ErrorIs(t, err, ErrTemperature, "temp=%v", temp)
	}
	_, err := Shape(row, 1, -1)
	assert.ErrorIs(t, err, ErrTopK)
}

func TestShapeRowReusesBuffer(t *testing.T) {
	t.Parallel()
	buf := make([]float64, 0, 8)
	got, err := ShapeRow(buf, []float32{1, 2, 3}, 1, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Same(t, &buf[:1][0], &got[0])
}

func TestKthLargest(t *testing.T) {
	t.Parallel()
	x := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	assert.Equal(t, 9.0, kthLargest(x, 1))
	assert.Equal(t, 5.0, kthLargest(x, 3))
	assert.Equal(t, 1.0, kthLargest(x, 8))
	assert.Equal(t, 4.0, kthLargest([]float64{4, 4, 4, 0}, 3))
}
