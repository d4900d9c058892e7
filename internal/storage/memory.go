package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"decipher/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	runOrder    []string
	traces      map[string][]model.TracePoint
	references  map[string]model.ReferenceModel
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.runOrder = nil
	s.traces = make(map[string][]model.TracePoint)
	s.references = make(map[string]model.ReferenceModel)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if _, ok := s.runs[run.ID]; !ok {
		s.runOrder = append(s.runOrder, run.ID)
	}
	run.BestKey = append([]int(nil), run.BestKey...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.BestKey = append([]int(nil), run.BestKey...)
	return run, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type indexedRun struct {
		run model.RunRecord
		idx int
	}
	indexed := make([]indexedRun, 0, len(s.runOrder))
	for i, id := range s.runOrder {
		indexed = append(indexed, indexedRun{run: s.runs[id], idx: i})
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].run.CreatedAtUTC == indexed[j].run.CreatedAtUTC {
			// Prefer later saves for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].run.CreatedAtUTC > indexed[j].run.CreatedAtUTC
	})
	if limit > 0 && len(indexed) > limit {
		indexed = indexed[:limit]
	}

	out := make([]model.RunRecord, 0, len(indexed))
	for _, item := range indexed {
		out = append(out, item.run)
	}
	return out, nil
}

func (s *MemoryStore) SaveTrace(_ context.Context, runID string, trace []model.TracePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.traces[runID] = append([]model.TracePoint(nil), trace...)
	return nil
}

func (s *MemoryStore) GetTrace(_ context.Context, runID string) ([]model.TracePoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trace, ok := s.traces[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.TracePoint(nil), trace...), true, nil
}

func (s *MemoryStore) SaveReferenceModel(_ context.Context, ref model.ReferenceModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.references[ref.Digest] = ref
	return nil
}

func (s *MemoryStore) GetReferenceModel(_ context.Context, digest string) (model.ReferenceModel, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.references[digest]
	return ref, ok, nil
}

var errNotInitialized = errors.New("store is not initialized")
