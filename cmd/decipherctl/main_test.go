package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"decipher/internal/stats"
)

const (
	testKey        = "a=c b=a c=b"
	testPlaintext  = "abc aab abcabc"
	testCiphertext = "cab cca cabcab"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	workdir := t.TempDir()
	if err := os.Chdir(workdir); err != nil {
		t.Fatalf("chdir tempdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origWD)
	})
	return workdir
}

func writeSmallCorpus(t *testing.T, dir string) string {
	t.Helper()
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = "abcabcabc aab abc"
	}
	path := filepath.Join(dir, "corpus.txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	return path
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run(context.Background(), []string{"bogus"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestEncryptCommand(t *testing.T) {
	workdir := chdirTemp(t)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"encrypt",
			"--alphabet", "abc",
			"--key", testKey,
			"--text", testPlaintext,
		})
	})
	if err != nil {
		t.Fatalf("encrypt command: %v", err)
	}
	if !strings.Contains(out, testCiphertext) {
		t.Fatalf("expected ciphertext in output: %s", out)
	}
	if !strings.Contains(out, `decrypt_key="a=b b=c c=a"`) {
		t.Fatalf("expected decrypt key in output: %s", out)
	}

	outPath := filepath.Join(workdir, "cipher.txt")
	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"encrypt",
			"--alphabet", "abc",
			"--key", testKey,
			"--text", testPlaintext,
			"--out", outPath,
		})
	}); err != nil {
		t.Fatalf("encrypt to file: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read ciphertext file: %v", err)
	}
	if strings.TrimSpace(string(data)) != testCiphertext {
		t.Fatalf("unexpected ciphertext file %q", data)
	}

	if err := run(context.Background(), []string{"encrypt", "--alphabet", "abc"}); err == nil {
		t.Fatal("expected missing input error")
	}
}

func TestSolveRunsTraceExportCommands(t *testing.T) {
	workdir := chdirTemp(t)
	corpusPath := writeSmallCorpus(t, workdir)

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"train",
			"--store", "memory",
			"--alphabet", "abc",
			"--corpus", corpusPath,
		})
	})
	if err != nil {
		t.Fatalf("train command: %v", err)
	}
	if !strings.Contains(out, "lines=20") || !strings.Contains(out, "cached=false") {
		t.Fatalf("unexpected train output: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{
			"solve",
			"--store", "memory",
			"--alphabet", "abc",
			"--corpus", corpusPath,
			"--text", testCiphertext,
			"--iters", "500",
			"--step", "3",
			"--seed", "7",
			"--chains", "2",
			"--true-key", testKey,
		})
	})
	if err != nil {
		t.Fatalf("solve command: %v", err)
	}
	if !strings.Contains(out, testPlaintext) {
		t.Fatalf("expected recovered plaintext in output: %s", out)
	}
	if !strings.Contains(out, "key_accuracy=1.0000") {
		t.Fatalf("expected full key accuracy: %s", out)
	}

	entries, err := stats.ListRunIndex("runs")
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one indexed run, got %d", len(entries))
	}
	runID := entries[0].RunID

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--store", "memory", "--limit", "1"})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out, "run_id="+runID) {
		t.Fatalf("runs output missing run id %s: %s", runID, out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"show", "--store", "memory", "--latest"})
	})
	if err != nil {
		t.Fatalf("show command: %v", err)
	}
	for _, want := range []string{"run_id=" + runID, "chains=2", "key_accuracy=1.0000", "ciphertext=" + testCiphertext, testPlaintext} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q: %s", want, out)
		}
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"show", "--store", "memory", "--run-id", runID, "--json"})
	})
	if err != nil {
		t.Fatalf("show json command: %v", err)
	}
	var shown map[string]any
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decode show output: %v\n%s", err, out)
	}
	if shown["id"] != runID || shown["plaintext"] != testPlaintext || shown["seed"] != float64(7) {
		t.Fatalf("unexpected show json: %v", shown)
	}

	if err := run(context.Background(), []string{"show", "--store", "memory", "--run-id", "missing"}); err == nil {
		t.Fatal("expected missing run error")
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"trace", "--store", "memory", "--latest", "--limit", "2"})
	})
	if err != nil {
		t.Fatalf("trace command: %v", err)
	}
	if strings.Count(out, "iter=") != 2 || !strings.Contains(out, "iter=500 ") {
		t.Fatalf("unexpected trace output: %s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"export", "--store", "memory", "--run-id", runID})
	})
	if err != nil {
		t.Fatalf("export command: %v", err)
	}
	if !strings.Contains(out, "exported run_id="+runID) {
		t.Fatalf("unexpected export output: %s", out)
	}
	for _, file := range []string{"config.json", "result.json", "score_trace.csv", "score_trace.html"} {
		if _, err := os.Stat(filepath.Join(workdir, "exports", runID, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}
}

func TestSolveCommandWithConfig(t *testing.T) {
	workdir := chdirTemp(t)
	corpusPath := writeSmallCorpus(t, workdir)
	configPath := filepath.Join(workdir, "solve.json")
	config := `{"alphabet": "abc", "corpus": "` + filepath.ToSlash(corpusPath) + `", "ciphertext": "` + testCiphertext + `", "iterations": 50, "step_size": 3, "seed": 3}`
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"solve", "--store", "memory", "--config", configPath, "--json"})
	})
	if err != nil {
		t.Fatalf("solve with config: %v", err)
	}
	if !strings.Contains(out, `"run_id"`) || !strings.Contains(out, `"best_mapping"`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestSolveCommandRequiresCorpus(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DECIPHER_CORPUS", "")
	if err := run(context.Background(), []string{"solve", "--store", "memory", "--text", testCiphertext}); err == nil {
		t.Fatal("expected missing corpus error")
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("DECIPHER_STORE", "")
	if got := envOr("DECIPHER_STORE", "memory"); got != "memory" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("DECIPHER_STORE", "sqlite")
	if got := envOr("DECIPHER_STORE", "memory"); got != "sqlite" {
		t.Fatalf("expected env value, got %q", got)
	}
}

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}
