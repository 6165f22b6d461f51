package toy

import (
	"github.com/samcharles93/quantserve/internal/tensor"
	"github.com/samcharles93/quantserve/pkg/quant"
)

// Linear is a weight matrix applied as dst = W x.
type Linear interface {
	Rows() int
	Cols() int
	MatVec(dst, x []float32)
	SizeBytes() int64
	DType() string
}

// Dense is a float32 linear layer.
type Dense struct {
	W tensor.Mat
}

func (d *Dense) Rows() int { return d.W.R }
func (d *Dense) Cols() int { return d.W.C }
func (d *Dense) MatVec(dst, x []float32) { tensor.MatVec(dst, &d.W, x) }
func (d *Dense) SizeBytes() int64 { return d.W.SizeBytes() }
func (d *Dense) DType() string { return "float32" }

// Quantised is a linear layer backed by a quantised tensor.
type Quantised struct {
	T      *quant.Tensor
	Scheme string
}

func (q *Quantised) Rows() int { return q.T.Rows }
func (q *Quantised) Cols() int { return q.T.Cols }
func (q *Quantised) MatVec(dst, x []float32) { q.T.MatVec(dst, x) }
func (q *Quantised) SizeBytes() int64 { return q.T.SizeBytes() }
func (q *Quantised) DType() string { return q.Scheme }
