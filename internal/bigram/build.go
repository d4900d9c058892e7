package bigram

import (
	"fmt"

	"decipher/internal/alphabet"
)

// CountPairs increments dst[i][j] for every adjacent pair (i, j) in indices.
// dst is left untouched when any index is out of range.
func CountPairs(dst *Matrix, indices []int) error {
	for t, idx := range indices {
		if idx < 0 || idx >= dst.m {
			return fmt.Errorf("%w: index %d at position %d for size %d", ErrIndexOutOfRange, idx, t, dst.m)
		}
	}
	addPairs(dst, indices)
	return nil
}

// addPairs is CountPairs for indices already known to lie in 0..m-1.
func addPairs(dst *Matrix, indices []int) {
	for t := 0; t+1 < len(indices); t++ {
		dst.cells[indices[t]*dst.m+indices[t+1]]++
	}
}

// BuildReference counts bigrams line by line over a corpus. Pairs never span
// two lines.
func BuildReference(alpha *alphabet.Alphabet, lines []string) *Matrix {
	mat := NewMatrix(alpha.M())
	for _, line := range lines {
		addPairs(mat, alpha.Encode(line))
	}
	return mat
}

// BuildObserved counts bigrams of a single ciphertext index sequence.
func BuildObserved(m int, cipher []int) (*Matrix, error) {
	mat := NewMatrix(m)
	if err := CountPairs(mat, cipher); err != nil {
		return nil, err
	}
	return mat, nil
}
