package logits

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrDegenerateLogits reports a row that cannot be normalised: it is
	// empty, contains NaN, or every entry is -Inf after filtering.
	ErrDegenerateLogits = errors.New("logits: row has no finite or +Inf entry")
	// ErrTemperature reports a temperature that is not finite and positive.
	ErrTemperature = errors.New("logits: temperature must be finite and > 0")
	// ErrTopK reports a negative top-k.
	ErrTopK = errors.New("logits: top_k must be >= 0")
)

// CheckParams validates a temperature/top-k pair without touching any logits.
func CheckParams(temperature float64, topK int) error {
	if !(temperature > 0) || math.IsInf(temperature, 0) {
		return ErrTemperature
	}
	if topK < 0 {
		return ErrTopK
	}
	return nil
}

// Shape turns a batch of raw logits into probability rows. Each row is
// shaped independently with ShapeRow.
func Shape(rows [][]float32, temperature float64, topK int) ([][]float64, error) {
	if err := CheckParams(temperature, topK); err != nil {
		return nil, err
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		p, err := ShapeRow(nil, row, temperature, topK)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// ShapeRow writes the distribution for one row of logits into dst, growing
// it as needed, and returns it. The steps run in a fixed order:
//
//  1. divide by temperature unless it is exactly 1;
//  2. when 0 < topK < len(row), set every value strictly below the k-th
//     largest to -Inf (values equal to the threshold survive);
//  3. softmax with the row max subtracted.
//
// A row whose max is +Inf puts equal mass on each +Inf entry.
func ShapeRow(dst []float64, row []float32, temperature float64, topK int) ([]float64, error) {
	if err := CheckParams(temperature, topK); err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, ErrDegenerateLogits
	}
	if cap(dst) < len(row) {
		dst = make([]float64, len(row))
	}
	dst = dst[:len(row)]

	for i, l := range row {
		v := float64(l)
		if math.IsNaN(v) {
			return nil, ErrDegenerateLogits
		}
		if temperature != 1 {
			v /= temperature
		}
		dst[i] = v
	}

	if topK > 0 && topK < len(dst) {
		threshold := kthLargest(dst, topK)
		for i, v := range dst {
			if v < threshold {
				dst[i] = math.Inf(-1)
			}
		}
	}

	maxv := floats.Max(dst)
	switch {
	case math.IsInf(maxv, -1):
		return nil, ErrDegenerateLogits
	case math.IsInf(maxv, 1):
		var n float64
		for i, v := range dst {
			if math.IsInf(v, 1) {
				dst[i] = 1
				n++
			} else {
				dst[i] = 0
			}
		}
		floats.Scale(1/n, dst)
		return dst, nil
	}

	for i, v := range dst {
		dst[i] = math.Exp(v - maxv)
	}
	// The max entry contributes exp(0) = 1, so sum >= 1.
	floats.Scale(1/floats.Sum(dst), dst)
	return dst, nil
}

// kthLargest returns the k-th largest value of x for 1 <= k <= len(x),
// counting duplicates. It keeps a descending shortlist of k values, which is
// O(V*K) and fine for the small k used in sampling.
func kthLargest(x []float64, k int) float64 {
	top := make([]float64, 0, k+1)
	for _, v := range x {
		pos := len(top)
		for pos > 0 && top[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}
		top = append(top, 0)
		copy(top[pos+1:], top[pos:])
		top[pos] = v
		if len(top) > k {
			top = top[:k]
		}
	}
	return top[k-1]
}
