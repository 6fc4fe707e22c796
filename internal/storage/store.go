// Package storage provides the archive of finished scheduler runs.
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// Store is the interface for archiving run results.
// The scheduler never reads it; it only backs the run history API.
type Store interface {
	// SaveRun persists a finished run, overwriting any run with the same ID.
	SaveRun(ctx context.Context, run *types.RunResult) error

	// GetRun retrieves a run by ID. Missing runs are marked ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*types.RunResult, error)

	// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]*types.RunResult, error)

	// DeleteRun removes a run. Deleting a missing run is not an error.
	DeleteRun(ctx context.Context, id string) error
}

func runNotFound(id string) error {
	return errors.Wrapf(internalerrors.ErrRunNotFound, "run %s", id)
}

// sortNewestFirst orders runs by start time descending, then by ID.
func sortNewestFirst(runs []*types.RunResult) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].RunID < runs[j].RunID
	})
}

func truncate(runs []*types.RunResult, limit int) []*types.RunResult {
	if limit > 0 && len(runs) > limit {
		return runs[:limit]
	}
	return runs
}

// MemoryStore keeps runs in memory. Used when no data directory is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*types.RunResult
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*types.RunResult)}
}

func (s *MemoryStore) SaveRun(ctx context.Context, run *types.RunResult) error {
	if err := run.Validate(); err != nil {
		return errors.Wrap(err, "invalid run")
	}
	runCopy := *run
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = &runCopy
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*types.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, runNotFound(id)
	}
	runCopy := *run
	return &runCopy, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]*types.RunResult, error) {
	s.mu.RLock()
	runs := make([]*types.RunResult, 0, len(s.runs))
	for _, run := range s.runs {
		runCopy := *run
		runs = append(runs, &runCopy)
	}
	s.mu.RUnlock()

	sortNewestFirst(runs)
	return truncate(runs, limit), nil
}

func (s *MemoryStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
	return nil
}
