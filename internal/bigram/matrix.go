package bigram

import (
	"errors"
	"fmt"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrSizeMismatch    = errors.New("matrix size mismatch")
)

// Matrix is an m×m table of non-negative bigram counts stored row-major.
type Matrix struct {
	m     int
	cells []float64
}

func NewMatrix(m int) *Matrix {
	if m < 0 {
		m = 0
	}
	return &Matrix{m: m, cells: make([]float64, m*m)}
}

// FromCounts rebuilds a matrix from a square table, typically one decoded
// from storage.
func FromCounts(counts [][]float64) (*Matrix, error) {
	mat := NewMatrix(len(counts))
	for i, row := range counts {
		if len(row) != mat.m {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrSizeMismatch, i, len(row), mat.m)
		}
		for j, v := range row {
			if v < 0 {
				return nil, fmt.Errorf("negative count %v at (%d,%d)", v, i, j)
			}
			mat.cells[i*mat.m+j] = v
		}
	}
	return mat, nil
}

func (mat *Matrix) Size() int { return mat.m }

func (mat *Matrix) At(i, j int) float64 { return mat.cells[i*mat.m+j] }

func (mat *Matrix) Add(i, j int, v float64) { mat.cells[i*mat.m+j] += v }

// Row returns a view of row i. Callers must not modify it.
func (mat *Matrix) Row(i int) []float64 { return mat.cells[i*mat.m : (i+1)*mat.m] }

func (mat *Matrix) Total() float64 {
	total := 0.0
	for _, v := range mat.cells {
		total += v
	}
	return total
}

func (mat *Matrix) IsZero() bool {
	for _, v := range mat.cells {
		if v != 0 {
			return false
		}
	}
	return true
}

func (mat *Matrix) Clone() *Matrix {
	return &Matrix{m: mat.m, cells: append([]float64(nil), mat.cells...)}
}

// Counts copies the matrix into a square table.
func (mat *Matrix) Counts() [][]float64 {
	out := make([][]float64, mat.m)
	for i := range out {
		out[i] = append([]float64(nil), mat.Row(i)...)
	}
	return out
}
