package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/bqflow/internal/jobs"
)

// Store is an in-memory implementation of jobs.Store.
// It is safe for concurrent use. Data is lost when the process exits.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*jobs.TaskRun
}

// NewStore creates a new in-memory run store.
func NewStore() *Store {
	return &Store{
		runs: make(map[string]*jobs.TaskRun),
	}
}

// SaveRun implements the Store interface.
func (s *Store) SaveRun(ctx context.Context, run *jobs.TaskRun) error {
	if run.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runCopy := *run
	s.runs[run.JobID] = &runCopy
	return nil
}

// GetRun implements the Store interface.
func (s *Store) GetRun(ctx context.Context, jobID string) (*jobs.TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[jobID]
	if !exists {
		return nil, fmt.Errorf("run not found: %s", jobID)
	}

	runCopy := *run
	return &runCopy, nil
}

// ListRuns implements the Store interface.
func (s *Store) ListRuns(ctx context.Context, filter jobs.RunFilter) ([]*jobs.TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.TaskRun
	for _, run := range s.runs {
		if filter.Kind != "" && run.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runCopy := *run
		result = append(result, &runCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].JobID < result[j].JobID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.TaskRun{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// UpdateRunStatus implements the Store interface.
func (s *Store) UpdateRunStatus(ctx context.Context, jobID string, status jobs.RunStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[jobID]
	if !exists {
		return fmt.Errorf("run not found: %s", jobID)
	}

	run.Status = status
	if errorMsg != "" {
		run.Error = errorMsg
	}
	return nil
}

var _ jobs.Store = (*Store)(nil)
