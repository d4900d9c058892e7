package mcmc

import (
	"math/rand"

	"decipher/internal/cipher"
)

// Propose returns a copy of key with swapCount random transpositions applied.
// Positions are drawn over the full range 0..m-1, so a proposal may move the
// mapping of index 0. The input key is never modified.
func Propose(key cipher.Key, rng *rand.Rand, swapCount int) cipher.Key {
	next := key.Clone()
	m := len(next)
	if m == 0 {
		return next
	}
	for s := 0; s < swapCount; s++ {
		i := rng.Intn(m)
		j := rng.Intn(m)
		next[i], next[j] = next[j], next[i]
	}
	return next
}
