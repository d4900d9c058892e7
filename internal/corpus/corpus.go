package corpus

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"decipher/internal/alphabet"
)

const maxLineBytes = 1 << 20

// ReadLines returns every line of r without line terminators.
func ReadLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lines := make([]string, 0, 1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := ReadLines(f)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return lines, nil
}

// Digest identifies a reference model: the alphabet and the exact corpus
// lines it was counted from.
func Digest(alpha *alphabet.Alphabet, lines []string) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only a key longer than 64 bytes can fail.
		panic(err)
	}
	writeField(h, alpha.Symbols())
	for _, line := range lines {
		writeField(h, line)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes s so line boundaries affect the digest.
func writeField(w io.Writer, s string) {
	var prefix [8]byte
	n := uint64(len(s))
	for i := range prefix {
		prefix[i] = byte(n >> (8 * i))
	}
	_, _ = w.Write(prefix[:])
	_, _ = io.WriteString(w, s)
}
