package storage

import (
	"context"
	"testing"

	"decipher/internal/model"
)

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.RunRecord{
		VersionedRecord: Versioned(),
		ID:              "run-1",
		CreatedAtUTC:    "2026-01-01T00:00:00Z",
		Alphabet:        "abc",
		BestKey:         []int{0, 2, 1, 3},
		BestScore:       12.5,
	}
	if err := store.SaveRun(ctx, input); err != nil {
		t.Fatalf("save run: %v", err)
	}
	input.BestKey[1] = 9

	output, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run")
	}
	if output.BestScore != 12.5 || output.BestKey[1] != 2 {
		t.Fatalf("unexpected run: %+v", output)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, r := range []model.RunRecord{
		{ID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{ID: "b", CreatedAtUTC: "2026-01-03T00:00:00Z"},
		{ID: "c", CreatedAtUTC: "2026-01-02T00:00:00Z"},
		{ID: "d", CreatedAtUTC: "2026-01-03T00:00:00Z"},
	} {
		if err := store.SaveRun(ctx, r); err != nil {
			t.Fatalf("save run %s: %v", r.ID, err)
		}
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	got := ""
	for _, r := range runs {
		got += r.ID
	}
	if got != "dbca" {
		t.Fatalf("unexpected order %q", got)
	}

	limited, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list runs limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "d" {
		t.Fatalf("unexpected limited runs: %+v", limited)
	}
}

func TestMemoryStoreTraceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.TracePoint{
		{Iteration: 0, CurrentScore: -10, BestScore: -10},
		{Iteration: 100, CurrentScore: -4, BestScore: -5, Accepted: 12},
	}
	if err := store.SaveTrace(ctx, "run-1", input); err != nil {
		t.Fatalf("save trace: %v", err)
	}
	output, ok, err := store.GetTrace(ctx, "run-1")
	if err != nil {
		t.Fatalf("get trace: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted trace")
	}
	if len(output) != 2 || output[1] != input[1] {
		t.Fatalf("unexpected trace: %+v", output)
	}
}

func TestMemoryStoreReferenceModelRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	ref := model.ReferenceModel{
		VersionedRecord: Versioned(),
		Digest:          "abc123",
		Alphabet:        "ab",
		Lines:           2,
		Counts:          [][]float64{{0, 1, 0}, {1, 0, 2}, {0, 0, 0}},
	}
	if err := store.SaveReferenceModel(ctx, ref); err != nil {
		t.Fatalf("save reference: %v", err)
	}
	loaded, ok, err := store.GetReferenceModel(ctx, "abc123")
	if err != nil {
		t.Fatalf("get reference: %v", err)
	}
	if !ok || loaded.Counts[1][2] != 2 {
		t.Fatalf("unexpected reference: %+v", loaded)
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), model.RunRecord{ID: "x"}); err == nil {
		t.Fatal("expected error before init")
	}
}
