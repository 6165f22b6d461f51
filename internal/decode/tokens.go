package decode

import (
	"fmt"
	"slices"
)

// Tokens is a row-major tensor of token ids. A decodable prompt has
// Shape [batch, seq] with both dimensions positive.
type Tokens struct {
	Shape []int
	Data  []int
}

// NewBatch builds a rank-2 tensor from equal-length rows.
func NewBatch(rows [][]int) (Tokens, error) {
	if len(rows) == 0 {
		return Tokens{}, shapeError("batch has no rows")
	}
	width := len(rows[0])
	data := make([]int, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return Tokens{}, shapeError("row %d has %d tokens, want %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	return Tokens{Shape: []int{len(rows), width}, Data: data}, nil
}

// Vector wraps ids as a rank-1 tensor. It is not decodable on its own; use
// NewBatch([][]int{ids}) for a single-row prompt.
func Vector(ids []int) Tokens {
	return Tokens{Shape: []int{len(ids)}, Data: slices.Clone(ids)}
}

// Rank returns the number of dimensions.
func (t Tokens) Rank() int { return len(t.Shape) }

// Rows returns copies of each row of a rank-2 tensor.
func (t Tokens) Rows() [][]int {
	if t.Rank() != 2 {
		return nil
	}
	batch, seq := t.Shape[0], t.Shape[1]
	rows := make([][]int, batch)
	for i := range rows {
		rows[i] = slices.Clone(t.Data[i*seq : (i+1)*seq])
	}
	return rows
}

// Row returns a view of row i of a rank-2 tensor.
func (t Tokens) Row(i int) []int {
	seq := t.Shape[1]
	return t.Data[i*seq : (i+1)*seq]
}

// Validate reports whether t is a decodable prompt.
func (t Tokens) Validate() error {
	if t.Rank() != 2 {
		return shapeError("prompt has rank %d, want 2", t.Rank())
	}
	batch, seq := t.Shape[0], t.Shape[1]
	if batch < 1 || seq < 1 {
		return shapeError("prompt shape %v has an empty dimension", t.Shape)
	}
	if len(t.Data) != batch*seq {
		return shapeError("prompt shape %v does not match %d ids", t.Shape, len(t.Data))
	}
	for i, id := range t.Data {
		if id < 0 {
			return shapeError("negative token id %d at row %d col %d", id, i/seq, i%seq)
		}
	}
	return nil
}

func (t Tokens) String() string {
	return fmt.Sprintf("Tokens%v%v", t.Shape, t.Data)
}
