package tensor

import (
	"math"
	"slices"
)

// Add accumulates src into dst. The vectors must have equal length.
func Add(dst, src []float32) {
	if len(dst) != len(src) {
		panic("tensor: add length mismatch")
	}
	for i, v := range src {
		dst[i] += v
	}
}

// Dot returns the inner product of two equal-length vectors.
func Dot(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("tensor: dot length mismatch")
	}
	var acc float32
	for i, v := range a {
		acc += v * b[i]
	}
	return acc
}

// Softmax normalises x in place into a probability vector. The exponent
// is taken relative to max(x) and accumulated in float64.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	peak := slices.Max(x)
	var total float64
	for i, v := range x {
		e := math.Exp(float64(v - peak))
		x[i] = float32(e)
		total += e
	}
	if total == 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		return
	}
	norm := float32(1 / total)
	for i := range x {
		x[i] *= norm
	}
}
