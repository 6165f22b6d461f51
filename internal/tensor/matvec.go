package tensor

// MatVec computes dst = w * x where w is a matrix and x is a vector.
// dst must have length w.R and x must have length w.C.
func MatVec(dst []float32, w *Mat, x []float32) {
	if len(dst) < w.R {
		panic("matvec dst too small")
	}
	if len(x) < w.C {
		panic("matvec x too small")
	}
	for r := 0; r < w.R; r++ {
		row := w.Data[r*w.Stride : r*w.Stride+w.C]
		dst[r] = Dot(row, x[:w.C])
	}
}
