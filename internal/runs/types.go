// Package runs records the outcome of every batch and serializes batch
// requests coming from the poll ticker, the HTTP API and the CLI.
package runs

import (
	"context"

	"github.com/dvloznov/mail-ledger/internal/pipeline"
)

// Status represents the outcome of a batch run.
type Status string

const (
	// StatusCompleted indicates the batch ran to the end. Individual messages
	// may still have failed; see the report counters.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the batch aborted (ledger down, listing failed,
	// cancellation).
	StatusFailed Status = "failed"
)

// Trigger names what requested a batch.
type Trigger string

const (
	TriggerTicker  Trigger = "ticker"
	TriggerStartup Trigger = "startup"
	TriggerAPI     Trigger = "api"
	TriggerCLI     Trigger = "cli"
)

// Run is one finished batch.
type Run struct {
	pipeline.BatchReport

	Trigger Trigger `json:"trigger"`
	Status  Status  `json:"status"`

	// Error contains error details if the batch failed.
	Error string `json:"error,omitempty"`
}

// Store keeps run history. Implementations must be safe for concurrent use.
type Store interface {
	// Save saves or replaces a run keyed by RunID.
	Save(ctx context.Context, run *Run) error

	// Get retrieves a run by id.
	Get(ctx context.Context, runID string) (*Run, error)

	// Last returns the most recently started run.
	Last(ctx context.Context) (*Run, error)

	// List returns runs newest first with optional filtering.
	List(ctx context.Context, filter Filter) ([]*Run, error)
}

// Filter defines filtering criteria for listing runs.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

// Handler executes one requested batch.
type Handler func(ctx context.Context, trigger Trigger)

// Requester accepts batch requests.
type Requester interface {
	// Request asks for a batch. It reports false when a batch is already
	// pending and the request was folded into it.
	Request(trigger Trigger) (bool, error)
}
