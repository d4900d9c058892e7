package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"decipher/internal/alphabet"
)

func TestReadLines(t *testing.T) {
	lines, err := ReadLines(strings.NewReader("first line\r\nsecond\n\nlast"))
	if err != nil {
		t.Fatalf("read lines: %v", err)
	}
	want := []string{"first line", "second", "", "last"}
	if len(lines) != len(want) {
		t.Fatalf("unexpected lines: %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, lines[i], want[i])
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	lines, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if len(lines) != 2 || lines[1] != "b" {
		t.Fatalf("unexpected lines: %q", lines)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestDigestDistinguishesLineBoundaries(t *testing.T) {
	alpha := alphabet.MustNew(alphabet.English)
	a := Digest(alpha, []string{"ab", "c"})
	b := Digest(alpha, []string{"a", "bc"})
	if a == b {
		t.Fatal("expected different digests for different line splits")
	}
	if a != Digest(alpha, []string{"ab", "c"}) {
		t.Fatal("expected stable digest")
	}
	if len(a) != 64 {
		t.Fatalf("expected 32 byte hex digest, got %d chars", len(a))
	}
	if Digest(alphabet.MustNew("abc"), []string{"ab", "c"}) == a {
		t.Fatal("expected alphabet to affect digest")
	}
}
