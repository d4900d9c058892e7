package mcmc

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"decipher/internal/bigram"
	"decipher/internal/cipher"
)

func mustCounts(t *testing.T, counts [][]float64) *bigram.Matrix {
	t.Helper()
	mat, err := bigram.FromCounts(counts)
	if err != nil {
		t.Fatalf("from counts: %v", err)
	}
	return mat
}

func TestScoreSmoothsZeroCounts(t *testing.T) {
	observed := mustCounts(t, [][]float64{{0, 2}, {1, 0}})
	reference := mustCounts(t, [][]float64{{1, 0}, {3, 0}})

	// total(reference) = 4, so zero cells become 0.25.
	want := 0.25*math.Log(1) + 2*math.Log(0.25) + 1*math.Log(3) + 0.25*math.Log(0.25)
	got := Score(cipher.Identity(2), observed, reference)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("score: got %v want %v", got, want)
	}

	// Swapping the key swaps both rows and columns of the reference lookup.
	swapped := Score(cipher.Key{1, 0}, observed, reference)
	wantSwapped := 0.25*math.Log(0.25) + 2*math.Log(3) + 1*math.Log(0.25) + 0.25*math.Log(1)
	if math.Abs(swapped-wantSwapped) > 1e-12 {
		t.Fatalf("swapped score: got %v want %v", swapped, wantSwapped)
	}
}

func TestScoreIsFiniteForRandomKeys(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	m := 12
	observed := bigram.NewMatrix(m)
	reference := bigram.NewMatrix(m)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			if rng.Intn(3) == 0 {
				observed.Add(i, j, float64(rng.Intn(20)))
			}
			if rng.Intn(2) == 0 {
				reference.Add(i, j, float64(rng.Intn(500)))
			}
		}
	}
	reference.Add(0, 0, 1)

	key := cipher.Identity(m)
	for i := 0; i < 100; i++ {
		key = Propose(key, rng, 2)
		score := Score(key, observed, reference)
		if math.IsNaN(score) || math.IsInf(score, 0) {
			t.Fatalf("non-finite score %v for key %v", score, key)
		}
	}
}

func TestScorerMatchesScore(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	m := 8
	observed := bigram.NewMatrix(m)
	reference := bigram.NewMatrix(m)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			observed.Add(i, j, float64(rng.Intn(4)))
			reference.Add(i, j, float64(rng.Intn(50)))
		}
	}
	scorer, err := NewScorer(observed, reference)
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}

	key := cipher.Identity(m)
	for i := 0; i < 50; i++ {
		key = Propose(key, rng, 1)
		want := Score(key, observed, reference)
		got := scorer.Score(key)
		if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
			t.Fatalf("scorer mismatch for %v: got %v want %v", key, got, want)
		}
	}
}

func TestScorerRejectsSizeMismatch(t *testing.T) {
	if _, err := NewScorer(bigram.NewMatrix(3), bigram.NewMatrix(4)); !errors.Is(err, bigram.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
}

func TestScoreDegenerateReferenceIsFinite(t *testing.T) {
	observed := mustCounts(t, [][]float64{{0, 1}, {1, 0}})
	reference := bigram.NewMatrix(2)
	if got := Score(cipher.Identity(2), observed, reference); got != 0 {
		t.Fatalf("expected zero score for all-zero reference, got %v", got)
	}

	warnings := ModelWarnings(observed, reference)
	if len(warnings) != 1 || warnings[0].Kind != WarningDegenerateModel {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
}
