package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/dvloznov/mail-ledger/internal/runs"
)

// DefaultCapacity bounds how many runs a Store keeps.
const DefaultCapacity = 500

// Store is an in-memory implementation of runs.Store.
// It is safe for concurrent use. History is lost on restart; the ledger
// itself is the durable record.
type Store struct {
	mu       sync.RWMutex
	runs     map[string]*runs.Run
	capacity int
}

// NewStore creates a store that keeps at most capacity runs, dropping the
// oldest. capacity <= 0 uses DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		runs:     make(map[string]*runs.Run),
		capacity: capacity,
	}
}

// Save implements runs.Store.
func (s *Store) Save(ctx context.Context, run *runs.Run) error {
	if run.RunID == "" {
		return fmt.Errorf("Save: run ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy so callers cannot modify stored runs.
	runCopy := *run
	s.runs[run.RunID] = &runCopy

	if len(s.runs) > s.capacity {
		oldest := s.sortedLocked()[len(s.runs)-1]
		delete(s.runs, oldest.RunID)
	}
	return nil
}

// Get implements runs.Store.
func (s *Store) Get(ctx context.Context, runID string) (*runs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[runID]
	if !exists {
		return nil, fmt.Errorf("Get: %w: %s", apperrors.ErrRunNotFound, runID)
	}
	runCopy := *run
	return &runCopy, nil
}

// Last implements runs.Store.
func (s *Store) Last(ctx context.Context) (*runs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return nil, fmt.Errorf("Last: %w", apperrors.ErrRunNotFound)
	}
	runCopy := *s.sortedLocked()[0]
	return &runCopy, nil
}

// List implements runs.Store.
func (s *Store) List(ctx context.Context, filter runs.Filter) ([]*runs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*runs.Run{}
	for _, run := range s.sortedLocked() {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runCopy := *run
		result = append(result, &runCopy)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*runs.Run{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// sortedLocked returns stored runs newest first. Callers hold s.mu.
func (s *Store) sortedLocked() []*runs.Run {
	out := make([]*runs.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].RunID > out[j].RunID
		}
		return out[i].Started.After(out[j].Started)
	})
	return out
}

var _ runs.Store = (*Store)(nil)
