package mcmc

import (
	"fmt"
	"math"

	"decipher/internal/bigram"
	"decipher/internal/cipher"
)

// Score is the log-likelihood of key given the observed ciphertext bigrams
// and the reference language bigrams. Higher is better.
//
// Zero observed counts and zero reference counts are both replaced by
// 1/total(reference). The key must already be valid for the matrix size.
func Score(key cipher.Key, observed, reference *bigram.Matrix) float64 {
	m := observed.Size()
	floor := smoothingFloor(reference.Total())
	total := 0.0
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			obs := observed.At(i, j)
			if obs == 0 {
				obs = floor
			}
			ref := reference.At(key[i], key[j])
			if ref == 0 {
				ref = floor
			}
			total += math.Log(ref) * obs
		}
	}
	return total
}

// Scorer caches everything in Score that does not depend on the key. It is
// read-only after construction and safe to share between chains.
type Scorer struct {
	m       int
	weights []float64
	logRef  []float64
}

func NewScorer(observed, reference *bigram.Matrix) (*Scorer, error) {
	if observed.Size() != reference.Size() {
		return nil, fmt.Errorf("%w: observed %d, reference %d", bigram.ErrSizeMismatch, observed.Size(), reference.Size())
	}
	m := observed.Size()
	floor := smoothingFloor(reference.Total())

	s := &Scorer{
		m:       m,
		weights: make([]float64, m*m),
		logRef:  make([]float64, m*m),
	}
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			obs := observed.At(i, j)
			if obs == 0 {
				obs = floor
			}
			ref := reference.At(i, j)
			if ref == 0 {
				ref = floor
			}
			s.weights[i*m+j] = obs
			s.logRef[i*m+j] = math.Log(ref)
		}
	}
	return s, nil
}

func (s *Scorer) Size() int { return s.m }

// Score returns the same value as the package level Score for the matrices
// the scorer was built from.
func (s *Scorer) Score(key cipher.Key) float64 {
	m := s.m
	total := 0.0
	for i := 0; i < m; i++ {
		row := key[i] * m
		w := s.weights[i*m : (i+1)*m]
		for j := 0; j < m; j++ {
			total += s.logRef[row+key[j]] * w[j]
		}
	}
	return total
}

// smoothingFloor is the substitute for zero counts. An all-zero reference has
// no meaningful total, so every cell falls back to 1.
func smoothingFloor(total float64) float64 {
	if total <= 0 {
		return 1
	}
	return 1 / total
}
