package runs

import (
	"context"
	"fmt"

	"github.com/dvloznov/mail-ledger/internal/logger"
	"github.com/dvloznov/mail-ledger/internal/pipeline"
	"github.com/rs/zerolog"
)

// BatchProcessor is satisfied by *pipeline.Processor.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context) (*pipeline.BatchReport, error)
}

// Runner executes a batch and records it.
type Runner struct {
	processor BatchProcessor
	store     Store
	log       zerolog.Logger
}

// NewRunner creates a Runner. store may be nil.
func NewRunner(processor BatchProcessor, store Store, log zerolog.Logger) *Runner {
	return &Runner{processor: processor, store: store, log: log}
}

// Run processes one batch and saves the outcome. The returned error is the
// batch error; failing to save the run is only logged.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (*Run, error) {
	report, err := r.processor.ProcessBatch(ctx)
	if report == nil {
		report = &pipeline.BatchReport{}
	}

	run := &Run{BatchReport: *report, Trigger: trigger, Status: StatusCompleted}
	log := logger.WithFields(r.log, map[string]interface{}{
		"run_id":  run.RunID,
		"trigger": string(trigger),
	})

	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		log.Error().Err(err).Msg("Batch failed")
	} else {
		log.Info().
			Dur("duration", run.Duration()).
			Int("ingested", run.Ingested).
			Msg("Batch completed")
	}

	if r.store != nil && run.RunID != "" {
		if serr := r.store.Save(ctx, run); serr != nil {
			log.Warn().Err(serr).Msg("Failed to save run")
		}
	}

	if err != nil {
		return run, fmt.Errorf("Run: %w", err)
	}
	return run, nil
}

// Handle adapts Run to a queue Handler.
func (r *Runner) Handle(ctx context.Context, trigger Trigger) {
	_, _ = r.Run(ctx, trigger)
}
