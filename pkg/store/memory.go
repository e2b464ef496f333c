package store

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory run store used in tests and for one-shot runs
// launched without a database path.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Run)}
}

// CreateRun inserts a new run record.
func (s *MemoryStore) CreateRun(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

// GetRun retrieves a run by ID.
func (s *MemoryStore) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	cp := *run
	return &cp, nil
}

// GetAllRuns returns every recorded run, most recent first.
func (s *MemoryStore) GetAllRuns() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*Run
	for _, run := range s.runs {
		cp := *run
		runs = append(runs, &cp)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs
}

// GetSubjectRuns returns the runs recorded for one subject, most recent first.
func (s *MemoryStore) GetSubjectRuns(subjectID string) []*Run {
	var runs []*Run
	for _, run := range s.GetAllRuns() {
		if run.SubjectID == subjectID {
			runs = append(runs, run)
		}
	}
	return runs
}

// CompleteRun marks a run finished with the given status and error message.
func (s *MemoryStore) CompleteRun(id string, status string, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}

	now := time.Now()
	run.Status = status
	run.Error = errorMsg
	run.CompletedAt = &now
	return nil
}

// CountByStatus returns the number of runs per status.
func (s *MemoryStore) CountByStatus() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{}
	for _, run := range s.runs {
		counts[run.Status]++
	}
	return counts
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
