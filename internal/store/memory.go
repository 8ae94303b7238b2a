package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"walkerevo/internal/ga"
	"walkerevo/internal/snapshot"
)

// MemoryStore keeps everything in maps. Records are copied in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	snapshots   map[string]SnapshotRecord
	results     map[string]Result
	history     map[string][]ga.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.snapshots = make(map[string]SnapshotRecord)
	s.results = make(map[string]Result)
	s.history = make(map[string][]ga.Record)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) SaveSnapshot(_ context.Context, rec *SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	if err := rec.Snapshot.Validate(); err != nil {
		return err
	}

	stamp(&rec.ID, &rec.CreatedAt)
	cp := *rec
	cp.Snapshot = cloneSnapshot(rec.Snapshot)
	s.snapshots[rec.ID] = cp
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, id string) (SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.snapshots[id]
	if !ok {
		return SnapshotRecord{}, ErrNotFound
	}
	rec.Snapshot = cloneSnapshot(rec.Snapshot)
	return rec, nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context) ([]SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SnapshotRecord, 0, len(s.snapshots))
	for _, rec := range s.snapshots {
		rec.Snapshot = cloneSnapshot(rec.Snapshot)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return before(out[i].CreatedAt.UnixNano(), out[i].ID, out[j].CreatedAt.UnixNano(), out[j].ID)
	})
	return out, nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, runID string, recs ...ga.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	hist := s.history[runID]
	for _, r := range recs {
		// a generation logged twice keeps the latest row
		i := slices.IndexFunc(hist, func(h ga.Record) bool { return h.Generation == r.Generation })
		if i >= 0 {
			hist[i] = r
			continue
		}
		hist = append(hist, r)
	}
	sort.SliceStable(hist, func(i, j int) bool { return hist[i].Generation < hist[j].Generation })
	s.history[runID] = hist
	return nil
}

func (s *MemoryStore) History(_ context.Context, runID string) ([]ga.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist, ok := s.history[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(hist), nil
}

func (s *MemoryStore) SaveResult(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	stamp(&r.ID, &r.CreatedAt)
	cp := *r
	cp.Payload = slices.Clone(r.Payload)
	s.results[r.ID] = cp
	return nil
}

func (s *MemoryStore) GetResult(_ context.Context, id string) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return Result{}, ErrNotFound
	}
	r.Payload = slices.Clone(r.Payload)
	return r, nil
}

func (s *MemoryStore) ListResults(_ context.Context) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Result, 0, len(s.results))
	for _, r := range s.results {
		r.Payload = slices.Clone(r.Payload)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return before(out[i].CreatedAt.UnixNano(), out[i].ID, out[j].CreatedAt.UnixNano(), out[j].ID)
	})
	return out, nil
}

func before(at1 int64, id1 string, at2 int64, id2 string) bool {
	if at1 != at2 {
		return at1 < at2
	}
	return id1 < id2
}

func cloneSnapshot(s snapshot.Snapshot) snapshot.Snapshot {
	s.Population = slices.Clone(s.Population)
	s.FitnessHistory = slices.Clone(s.FitnessHistory)
	if s.CrossoverRate != nil {
		r := *s.CrossoverRate
		s.CrossoverRate = &r
	}
	return s
}
