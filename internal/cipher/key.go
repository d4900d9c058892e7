package cipher

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"decipher/internal/alphabet"
)

var ErrInvalidKey = errors.New("invalid key")

// Key is a permutation of 0..m-1. Used as a decryption key it maps a
// ciphertext index to a plaintext index.
type Key []int

func Identity(m int) Key {
	k := make(Key, m)
	for i := range k {
		k[i] = i
	}
	return k
}

// NewKey copies perm and checks that it is a permutation.
func NewKey(perm []int) (Key, error) {
	k := append(Key(nil), perm...)
	if err := k.Validate(len(perm)); err != nil {
		return nil, err
	}
	return k, nil
}

// RandomKey returns a uniform permutation of 1..m-1 that fixes 0.
func RandomKey(m int, rng *rand.Rand) Key {
	k := Identity(m)
	if m > 2 {
		rng.Shuffle(m-1, func(i, j int) {
			k[i+1], k[j+1] = k[j+1], k[i+1]
		})
	}
	return k
}

func (k Key) Validate(m int) error {
	if len(k) != m {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidKey, len(k), m)
	}
	seen := make([]bool, m)
	for i, v := range k {
		if v < 0 || v >= m {
			return fmt.Errorf("%w: entry %d at %d out of range", ErrInvalidKey, v, i)
		}
		if seen[v] {
			return fmt.Errorf("%w: %d appears twice", ErrInvalidKey, v)
		}
		seen[v] = true
	}
	return nil
}

func (k Key) FixesZero() bool { return len(k) > 0 && k[0] == 0 }

func (k Key) Clone() Key { return append(Key(nil), k...) }

func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

func (k Key) Inverse() Key {
	inv := make(Key, len(k))
	for i, v := range k {
		inv[v] = i
	}
	return inv
}

// Apply maps every index through the key.
func (k Key) Apply(indices []int) []int {
	out := make([]int, len(indices))
	for t, idx := range indices {
		out[t] = k[idx]
	}
	return out
}

// Mapping renders the key as space separated "from=to" symbol pairs for
// indices 1..k. Entries that map to or from index 0 render the space as '_'.
func (k Key) Mapping(alpha *alphabet.Alphabet) string {
	parts := make([]string, 0, len(k))
	for i := 1; i < len(k); i++ {
		parts = append(parts, fmt.Sprintf("%c=%c", mappingSymbol(alpha, i), mappingSymbol(alpha, k[i])))
	}
	return strings.Join(parts, " ")
}

// ParseMapping is the inverse of Mapping. Symbols that are not listed map to
// themselves, and index 0 maps to whatever is left over.
func ParseMapping(alpha *alphabet.Alphabet, s string) (Key, error) {
	m := alpha.M()
	k := make(Key, m)
	for i := range k {
		k[i] = -1
	}
	for _, pair := range strings.Fields(s) {
		from, to, ok := strings.Cut(pair, "=")
		if !ok || len(from) != 1 || len(to) != 1 {
			return nil, fmt.Errorf("%w: malformed pair %q", ErrInvalidKey, pair)
		}
		fi, ti := mappingIndex(alpha, from[0]), mappingIndex(alpha, to[0])
		if fi < 0 || ti < 0 {
			return nil, fmt.Errorf("%w: pair %q uses symbols outside the alphabet", ErrInvalidKey, pair)
		}
		if k[fi] != -1 {
			return nil, fmt.Errorf("%w: %q mapped twice", ErrInvalidKey, from)
		}
		k[fi] = ti
	}

	used := make([]bool, m)
	for _, v := range k {
		if v >= 0 {
			if used[v] {
				return nil, fmt.Errorf("%w: %q is the image of two symbols", ErrInvalidKey, alpha.Symbol(v))
			}
			used[v] = true
		}
	}
	for i := 1; i < m; i++ {
		if k[i] == -1 && !used[i] {
			k[i] = i
			used[i] = true
		}
	}
	for i := 0; i < m; i++ {
		if k[i] != -1 {
			continue
		}
		for v := 0; v < m; v++ {
			if !used[v] {
				k[i] = v
				used[v] = true
				break
			}
		}
	}
	if err := k.Validate(m); err != nil {
		return nil, err
	}
	return k, nil
}

// Encrypt substitutes plaintext through an encryption key. The output is
// normalized the same way Encode normalizes its input.
func Encrypt(alpha *alphabet.Alphabet, enc Key, plaintext string) (string, error) {
	if err := enc.Validate(alpha.M()); err != nil {
		return "", err
	}
	return alpha.Decode(enc.Apply(alpha.Encode(plaintext))), nil
}

func mappingSymbol(alpha *alphabet.Alphabet, idx int) byte {
	if idx == alphabet.Other {
		return '_'
	}
	return alpha.Symbol(idx)
}

func mappingIndex(alpha *alphabet.Alphabet, b byte) int {
	if b == '_' {
		return alphabet.Other
	}
	if idx := alpha.Index(b); idx != alphabet.Other {
		return idx
	}
	return -1
}
