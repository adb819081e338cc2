package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemRepository is an in-memory implementation of Store for testing.
type InMemRepository struct {
	mu   sync.RWMutex
	runs map[string]Run
	rows map[string][]ScoredRow
}

// NewInMemRepository creates a new InMemRepository.
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		runs: make(map[string]Run),
		rows: make(map[string][]ScoredRow),
	}
}

// CreateRun stores run; a duplicate id is an error like the primary key.
func (r *InMemRepository) CreateRun(ctx context.Context, run Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; ok {
		return fmt.Errorf("failed to insert prediction run: duplicate run id %s", run.ID)
	}
	r.runs[run.ID] = run
	return nil
}

// SeedRows allows adding scored rows for test setup.
func (r *InMemRepository) SeedRows(runID string, rows []ScoredRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[runID] = append(r.rows[runID], rows...)
	sort.SliceStable(r.rows[runID], func(i, j int) bool { return r.rows[runID][i].Row < r.rows[runID][j].Row })
}

func (r *InMemRepository) FetchRun(ctx context.Context, runID string) (Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runID]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

func (r *InMemRepository) FetchFactors(ctx context.Context, runID string) ([]ScoredRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.runs[runID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	out := make([]ScoredRow, len(r.rows[runID]))
	copy(out, r.rows[runID])
	return out, nil
}
