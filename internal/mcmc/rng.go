package mcmc

import "math/rand"

// NewRand returns the generator owned by a single chain.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// DeriveSeed mixes a parent seed with a chain index (SplitMix64 finalizer) so
// parallel chains draw from uncorrelated streams. Chain 0 keeps the parent
// seed, which makes a one-chain run identical to a plain Run.
func DeriveSeed(parent int64, chain int) int64 {
	if chain == 0 {
		return parent
	}
	x := uint64(parent) ^ (uint64(chain) + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}
