package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSolveRequestFromConfig(t *testing.T) {
	dir := t.TempDir()
	cipherPath := filepath.Join(dir, "cipher.txt")
	if err := os.WriteFile(cipherPath, []byte("cab cca\n"), 0o644); err != nil {
		t.Fatalf("write ciphertext: %v", err)
	}

	path := filepath.Join(dir, "solve.json")
	payload := map[string]any{
		"alphabet":        "abc",
		"corpus":          "corpus.txt",
		"ciphertext_file": cipherPath,
		"iterations":      500,
		"step_size":       3,
		"seed":            77,
		"print_every":     25,
		"chains":          4,
		"workers":         2,
		"true_key":        "a=c b=a c=b",
		"preview_length":  30,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadSolveRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load solve request: %v", err)
	}
	if req.Alphabet != "abc" || req.CorpusPath != "corpus.txt" || req.Ciphertext != "cab cca" {
		t.Fatalf("unexpected text fields: %+v", req)
	}
	if req.Iterations != 500 || req.StepSize != 3 || req.Seed != 77 || req.PrintEvery != 25 {
		t.Fatalf("unexpected sampler fields: %+v", req)
	}
	if req.Chains != 4 || req.Workers != 2 || req.PreviewLength != 30 || req.TrueKey != "a=c b=a c=b" {
		t.Fatalf("unexpected run fields: %+v", req)
	}
}

func TestLoadSolveRequestFromConfigRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadSolveRequestFromConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOverrideFromFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solve.json")
	if err := os.WriteFile(path, []byte(`{"iterations": 100, "seed": 5, "chains": 2}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	req, err := loadSolveRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	set := map[string]bool{"iters": true, "seed": true}
	values := map[string]any{"iters": 2000, "seed": int64(9), "chains": 8}
	if err := overrideFromFlags(&req, set, values); err != nil {
		t.Fatalf("override: %v", err)
	}
	if req.Iterations != 2000 || req.Seed != 9 {
		t.Fatalf("expected overridden fields, got %+v", req)
	}
	if req.Chains != 2 {
		t.Fatalf("unset flag must not override config, got chains=%d", req.Chains)
	}

	if err := overrideFromFlags(&req, map[string]bool{"bogus": true}, map[string]any{"bogus": 1}); err == nil {
		t.Fatal("expected unsupported flag error")
	}
}

func TestLoadSolveRequestFromConfigKeepsLargeSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solve.json")
	if err := os.WriteFile(path, []byte(`{"seed": 9007199254740993, "iterations": 1000}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	req, err := loadSolveRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if req.Seed != 9007199254740993 {
		t.Fatalf("seed lost precision: %d", req.Seed)
	}
	if req.Iterations != 1000 {
		t.Fatalf("unexpected iterations %d", req.Iterations)
	}
}
