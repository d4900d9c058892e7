package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"decipher/pkg/decipher"
)

func loadSolveRequestFromConfig(path string) (decipher.SolveRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return decipher.SolveRequest{}, err
	}
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return decipher.SolveRequest{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	var req decipher.SolveRequest
	if v, ok := asString(raw["alphabet"]); ok {
		req.Alphabet = v
	}
	if v, ok := asString(raw["corpus"]); ok {
		req.CorpusPath = v
	}
	if v, ok := asString(raw["ciphertext"]); ok {
		req.Ciphertext = v
	}
	if v, ok := asString(raw["ciphertext_file"]); ok && req.Ciphertext == "" {
		text, err := readText("", v)
		if err != nil {
			return decipher.SolveRequest{}, err
		}
		req.Ciphertext = text
	}
	if v, ok := asInt(raw["iterations"]); ok {
		req.Iterations = v
	}
	if v, ok := asInt(raw["step_size"]); ok {
		req.StepSize = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["print_every"]); ok {
		req.PrintEvery = v
	}
	if v, ok := asInt(raw["chains"]); ok {
		req.Chains = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asString(raw["true_key"]); ok {
		req.TrueKey = v
	}
	if v, ok := asInt(raw["preview_length"]); ok {
		req.PreviewLength = v
	}
	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

func overrideFromFlags(req *decipher.SolveRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "alphabet":
			req.Alphabet = v.(string)
		case "corpus":
			req.CorpusPath = v.(string)
		case "iters":
			req.Iterations = v.(int)
		case "step":
			req.StepSize = v.(int)
		case "seed":
			req.Seed = v.(int64)
		case "print-every":
			req.PrintEvery = v.(int)
		case "chains":
			req.Chains = v.(int)
		case "workers":
			req.Workers = v.(int)
		case "true-key":
			req.TrueKey = v.(string)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}
