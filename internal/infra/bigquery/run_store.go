package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/dvloznov/mail-ledger/internal/runs"
)

// RunStore is the BigQuery implementation of runs.Store. It borrows the
// client of the LedgerStore that created it and must not outlive it.
type RunStore struct {
	client *bigquery.Client
	ref    TableRef
}

var _ runs.Store = (*RunStore)(nil)

// RunStore returns a run history store kept in <table>_runs next to the
// ledger table, creating the table when needed.
func (s *LedgerStore) RunStore(ctx context.Context) (*RunStore, error) {
	ref := s.ref
	ref.Table += runsTableSuffix

	if err := EnsureRunsTableWithClient(ctx, s.client, ref); err != nil {
		return nil, fmt.Errorf("RunStore: %w", err)
	}
	return &RunStore{client: s.client, ref: ref}, nil
}

func (s *RunStore) Save(ctx context.Context, run *runs.Run) error {
	if run.RunID == "" {
		return fmt.Errorf("Save: run ID is required")
	}
	return UpsertRunWithClient(ctx, s.client, s.ref, ToRunRow(run))
}

func (s *RunStore) Get(ctx context.Context, runID string) (*runs.Run, error) {
	rows, err := QueryRunsWithClient(ctx, s.client, s.ref, runID, "", 1)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("Get: %w: %s", apperrors.ErrRunNotFound, runID)
	}
	return FromRunRow(rows[0]), nil
}

func (s *RunStore) Last(ctx context.Context) (*runs.Run, error) {
	rows, err := QueryRunsWithClient(ctx, s.client, s.ref, "", "", 1)
	if err != nil {
		return nil, fmt.Errorf("Last: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("Last: %w", apperrors.ErrRunNotFound)
	}
	return FromRunRow(rows[0]), nil
}

func (s *RunStore) List(ctx context.Context, filter runs.Filter) ([]*runs.Run, error) {
	limit := filter.Limit
	if limit > 0 {
		limit += filter.Offset
	}

	rows, err := QueryRunsWithClient(ctx, s.client, s.ref, "", string(filter.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	return pageRuns(rows, filter.Offset), nil
}

func pageRuns(rows []*RunRow, offset int) []*runs.Run {
	out := []*runs.Run{}
	if offset >= len(rows) {
		return out
	}
	for _, r := range rows[offset:] {
		out = append(out, FromRunRow(r))
	}
	return out
}
