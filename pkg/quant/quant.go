// Package quant implements weight quantisation schemes for linear layers.
package quant

import (
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/quantserve/internal/tensor"
)

// DefaultBlockSize is the number of weights sharing one scale.
const DefaultBlockSize = 32

var ErrShape = errors.New("quant: invalid tensor shape")

// Scheme turns a dense float32 matrix into a quantised tensor.
type Scheme interface {
	Name() string
	Quantise(m *tensor.Mat) (*Tensor, error)
}

// Tensor is a row-major quantised matrix. Each row is split into blocks of
// BlockSize values; block b of row r is scaled by Scales[r*BlocksPerRow+b].
type Tensor struct {
	Rows, Cols   int
	BlockSize    int
	BlocksPerRow int
	Scales       []float32
	Data         []int8
}

// Int8 is symmetric block-wise int8 quantisation: q = round(x/scale) with
// scale = max|x|/127 per block.
type Int8 struct {
	BlockSize int
}

func (s Int8) Name() string { return "int8" }

func (s Int8) Quantise(m *tensor.Mat) (*Tensor, error) {
	if m == nil || m.R <= 0 || m.C <= 0 {
		return nil, ErrShape
	}
	bs := s.BlockSize
	if bs <= 0 {
		bs = DefaultBlockSize
	}
	bs = min(bs, m.C)
	blocks := (m.C + bs - 1) / bs

	t := &Tensor{
		Rows:         m.R,
		Cols:         m.C,
		BlockSize:    bs,
		BlocksPerRow: blocks,
		Scales:       make([]float32, m.R*blocks),
		Data:         make([]int8, m.R*m.C),
	}
	for r := 0; r < m.R; r++ {
		row := m.Row(r)
		for b := 0; b < blocks; b++ {
			start := b * bs
			end := min(start+bs, m.C)
			var maxAbs float32
			for _, v := range row[start:end] {
				if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
					return nil, fmt.Errorf("quant: non-finite weight at row %d", r)
				}
				maxAbs = max(maxAbs, float32(math.Abs(float64(v))))
			}
			scale := maxAbs / 127
			t.Scales[r*blocks+b] = scale
			if scale == 0 {
				continue
			}
			inv := 1 / scale
			for i := start; i < end; i++ {
				q := math.Round(float64(row[i] * inv))
				q = math.Max(-127, math.Min(127, q))
				t.Data[r*m.C+i] = int8(q)
			}
		}
	}
	return t, nil
}

// MatVec computes dst = t * x without materialising dequantised weights.
func (t *Tensor) MatVec(dst, x []float32) {
	if len(dst) < t.Rows || len(x) < t.Cols {
		panic("quant: matvec buffer too small")
	}
	for r := 0; r < t.Rows; r++ {
		q := t.Data[r*t.Cols : (r+1)*t.Cols]
		var sum float32
		for b := 0; b < t.BlocksPerRow; b++ {
			start := b * t.BlockSize
			end := min(start+t.BlockSize, t.Cols)
			sum += t.Scales[r*t.BlocksPerRow+b] * dotInt8Float32(q[start:end], x[start:end])
		}
		dst[r] = sum
	}
}

// Dequantise expands the tensor back into a dense matrix.
func (t *Tensor) Dequantise() tensor.Mat {
	m := tensor.NewMat(t.Rows, t.Cols)
	for r := 0; r < t.Rows; r++ {
		row := m.Row(r)
		for i := range row {
			row[i] = float32(t.Data[r*t.Cols+i]) * t.Scales[r*t.BlocksPerRow+i/t.BlockSize]
		}
	}
	return m
}

// SizeBytes is one byte per weight plus four per block scale.
func (t *Tensor) SizeBytes() int64 {
	return int64(len(t.Data)) + int64(len(t.Scales))*4
}

func dotInt8Float32(q []int8, x []float32) float32 {
	var sum float32
	for i := range q {
		sum += float32(q[i]) * x[i]
	}
	return sum
}
