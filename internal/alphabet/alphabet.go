package alphabet

import (
	"errors"
	"fmt"
	"strings"
)

// English is the default 26 letter alphabet.
const English = "abcdefghijklmnopqrstuvwxyz"

// Other is the reserved index for any byte outside the alphabet.
const Other = 0

// Reserved bytes can never be symbols. A space is how Other decodes, '_'
// stands for Other in key mappings and '=' separates a mapping pair.
const Reserved = " _="

var ErrInvalidAlphabet = errors.New("invalid alphabet")

// Alphabet is a fixed bijection between k single-byte symbols and the
// indices 1..k. Index 0 is reserved for everything else.
type Alphabet struct {
	symbols string
	index   [256]uint8
}

func New(symbols string) (*Alphabet, error) {
	if symbols == "" {
		return nil, fmt.Errorf("%w: no symbols", ErrInvalidAlphabet)
	}
	if len(symbols) > 255 {
		return nil, fmt.Errorf("%w: %d symbols exceeds 255", ErrInvalidAlphabet, len(symbols))
	}

	a := &Alphabet{symbols: symbols}
	for i := 0; i < len(symbols); i++ {
		b := symbols[i]
		if b >= 0x80 {
			return nil, fmt.Errorf("%w: non-ascii byte %#x at %d", ErrInvalidAlphabet, b, i)
		}
		if b < 0x20 || b == 0x7f {
			return nil, fmt.Errorf("%w: control byte %#x at %d", ErrInvalidAlphabet, b, i)
		}
		if b >= 'A' && b <= 'Z' {
			return nil, fmt.Errorf("%w: upper-case symbol %q", ErrInvalidAlphabet, b)
		}
		if strings.IndexByte(Reserved, b) >= 0 {
			return nil, fmt.Errorf("%w: reserved symbol %q", ErrInvalidAlphabet, b)
		}
		if a.index[b] != 0 {
			return nil, fmt.Errorf("%w: duplicate symbol %q", ErrInvalidAlphabet, b)
		}
		a.index[b] = uint8(i + 1)
	}
	return a, nil
}

// MustNew is New for package-level alphabets known to be valid.
func MustNew(symbols string) *Alphabet {
	a, err := New(symbols)
	if err != nil {
		panic(err)
	}
	return a
}

// K is the number of symbols.
func (a *Alphabet) K() int { return len(a.symbols) }

// M is the matrix and key dimension, K()+1.
func (a *Alphabet) M() int { return len(a.symbols) + 1 }

func (a *Alphabet) Symbols() string { return a.symbols }

func (a *Alphabet) Contains(b byte) bool { return a.index[b] != 0 }

// Index returns the index of b, or Other when b is not a symbol.
func (a *Alphabet) Index(b byte) int { return int(a.index[b]) }

// Symbol returns the symbol for index i. Other and out-of-range indices
// render as a space.
func (a *Alphabet) Symbol(i int) byte {
	if i <= 0 || i > len(a.symbols) {
		return ' '
	}
	return a.symbols[i-1]
}

// Encode lower-cases text and maps it to indices. Each run of bytes outside
// the alphabet becomes a single Other.
func (a *Alphabet) Encode(text string) []int {
	text = strings.ToLower(text)
	out := make([]int, 0, len(text))
	inOther := false
	for i := 0; i < len(text); i++ {
		idx := int(a.index[text[i]])
		if idx == Other {
			if inOther {
				continue
			}
			inOther = true
		} else {
			inOther = false
		}
		out = append(out, idx)
	}
	return out
}

func (a *Alphabet) Decode(indices []int) string {
	var b strings.Builder
	b.Grow(len(indices))
	for _, idx := range indices {
		b.WriteByte(a.Symbol(idx))
	}
	return b.String()
}
