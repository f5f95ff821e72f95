package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/mail-ledger/internal/pipeline"
	"github.com/dvloznov/mail-ledger/internal/runs"
)

// runsTableSuffix names the run history table next to the ledger table.
const runsTableSuffix = "_runs"

// RunRow mirrors one row of the run history table.
type RunRow struct {
	RunID   string `bigquery:"run_id"`      // REQUIRED
	Trigger string `bigquery:"run_trigger"` // REQUIRED
	Status  string `bigquery:"status"`      // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Listed        int64 `bigquery:"listed"`
	Skipped       int64 `bigquery:"skipped"`
	NoAttachments int64 `bigquery:"no_attachments"`
	Ingested      int64 `bigquery:"ingested"`
	Duplicates    int64 `bigquery:"duplicates"`
	Failed        int64 `bigquery:"failed"`
	MarkFailures  int64 `bigquery:"mark_failures"`

	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE
}

var runsSchema = bigquery.Schema{
	{Name: "run_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "run_trigger", Type: bigquery.StringFieldType, Required: true},
	{Name: "status", Type: bigquery.StringFieldType, Required: true},
	{Name: "started_ts", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "finished_ts", Type: bigquery.TimestampFieldType},
	{Name: "listed", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "skipped", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "no_attachments", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "ingested", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "duplicates", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "failed", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "mark_failures", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "error_message", Type: bigquery.StringFieldType},
}

// maxErrorLen bounds the stored error text.
const maxErrorLen = 2000

// ToRunRow converts a run to its table representation.
func ToRunRow(r *runs.Run) *RunRow {
	row := &RunRow{
		RunID:         r.RunID,
		Trigger:       string(r.Trigger),
		Status:        string(r.Status),
		StartedTS:     r.Started.UTC(),
		Listed:        int64(r.Listed),
		Skipped:       int64(r.Skipped),
		NoAttachments: int64(r.NoAttachments),
		Ingested:      int64(r.Ingested),
		Duplicates:    int64(r.Duplicates),
		Failed:        int64(r.Failed),
		MarkFailures:  int64(r.MarkFailures),
	}
	if !r.Finished.IsZero() {
		row.FinishedTS = bigquery.NullTimestamp{Timestamp: r.Finished.UTC(), Valid: true}
	}
	if r.Error != "" {
		msg := r.Error
		if len(msg) > maxErrorLen {
			msg = msg[:maxErrorLen]
		}
		row.ErrorMessage = bigquery.NullString{StringVal: msg, Valid: true}
	}
	return row
}

// FromRunRow converts a table row back to a run.
func FromRunRow(row *RunRow) *runs.Run {
	r := &runs.Run{
		BatchReport: pipeline.BatchReport{
			RunID:         row.RunID,
			Started:       row.StartedTS,
			Listed:        int(row.Listed),
			Skipped:       int(row.Skipped),
			NoAttachments: int(row.NoAttachments),
			Ingested:      int(row.Ingested),
			Duplicates:    int(row.Duplicates),
			Failed:        int(row.Failed),
			MarkFailures:  int(row.MarkFailures),
		},
		Trigger: runs.Trigger(row.Trigger),
		Status:  runs.Status(row.Status),
	}
	if row.FinishedTS.Valid {
		r.Finished = row.FinishedTS.Timestamp
	}
	if row.ErrorMessage.Valid {
		r.Error = row.ErrorMessage.StringVal
	}
	return r
}
