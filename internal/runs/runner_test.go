package runs_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/dvloznov/mail-ledger/internal/logger"
	"github.com/dvloznov/mail-ledger/internal/pipeline"
	"github.com/dvloznov/mail-ledger/internal/runs"
	"github.com/dvloznov/mail-ledger/internal/runs/inmemory"
)

// MockProcessor is a mock implementation of runs.BatchProcessor.
type MockProcessor struct {
	ProcessBatchFunc func(ctx context.Context) (*pipeline.BatchReport, error)
}

func (m *MockProcessor) ProcessBatch(ctx context.Context) (*pipeline.BatchReport, error) {
	return m.ProcessBatchFunc(ctx)
}

func TestRunner_Run(t *testing.T) {
	started := time.Date(2024, time.June, 24, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		report     *pipeline.BatchReport
		err        error
		wantStatus runs.Status
		wantSaved  bool
	}{
		{
			name:       "completed batch",
			report:     &pipeline.BatchReport{RunID: "r1", Started: started, Ingested: 2},
			wantStatus: runs.StatusCompleted,
			wantSaved:  true,
		},
		{
			name:       "ledger down",
			report:     &pipeline.BatchReport{RunID: "r2", Started: started},
			err:        apperrors.ErrLedgerUnavailable,
			wantStatus: runs.StatusFailed,
			wantSaved:  true,
		},
		{
			name:       "no report",
			err:        errors.New("boom"),
			wantStatus: runs.StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := inmemory.NewStore(0)
			proc := &MockProcessor{ProcessBatchFunc: func(ctx context.Context) (*pipeline.BatchReport, error) {
				return tt.report, tt.err
			}}
			logs := &bytes.Buffer{}
			r := runs.NewRunner(proc, store, logger.NewWithWriter(logs))

			run, err := r.Run(ctx, runs.TriggerCLI)
			if (err != nil) != (tt.err != nil) {
				t.Fatalf("Run() error = %v, want %v", err, tt.err)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("Run() error = %v does not wrap %v", err, tt.err)
			}
			if run.Status != tt.wantStatus || run.Trigger != runs.TriggerCLI {
				t.Errorf("run = %+v", run)
			}
			if tt.err != nil && run.Error == "" {
				t.Error("failed run has no error text")
			}
			wantFields := []string{`"trigger":"` + string(runs.TriggerCLI) + `"`, `"run_id":"` + run.RunID + `"`}
			for _, f := range wantFields {
				if !strings.Contains(logs.String(), f) {
					t.Errorf("log missing %s: %s", f, logs.String())
				}
			}

			last, lerr := store.Last(ctx)
			if tt.wantSaved {
				if lerr != nil || last.RunID != tt.report.RunID {
					t.Errorf("Last() = %+v, %v", last, lerr)
				}
			} else if lerr == nil {
				t.Errorf("run without id was saved: %+v", last)
			}
		})
	}
}
