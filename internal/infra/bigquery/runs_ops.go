package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/mail-ledger/internal/logger"
	"google.golang.org/api/iterator"
)

const runColumns = `
	run_id,
	run_trigger,
	status,
	started_ts,
	finished_ts,
	listed,
	skipped,
	no_attachments,
	ingested,
	duplicates,
	failed,
	mark_failures,
	error_message`

// EnsureRunsTableWithClient creates the run history table when it is missing.
func EnsureRunsTableWithClient(ctx context.Context, client *bigquery.Client, ref TableRef) error {
	if err := ensureTableWithClient(ctx, client, ref, &bigquery.TableMetadata{
		Schema:      runsSchema,
		Description: "Mailbox batch runs",
	}); err != nil {
		return fmt.Errorf("EnsureRunsTableWithClient: %w", err)
	}
	return nil
}

// UpsertRunWithClient inserts row, or replaces the row with the same run_id.
func UpsertRunWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, row *RunRow) error {
	q := client.Query(`
		MERGE ` + ref.String() + ` T
		USING (SELECT @run_id AS run_id) S
		ON T.run_id = S.run_id
		WHEN MATCHED THEN UPDATE SET
			run_trigger = @run_trigger,
			status = @status,
			started_ts = @started_ts,
			finished_ts = @finished_ts,
			listed = @listed,
			skipped = @skipped,
			no_attachments = @no_attachments,
			ingested = @ingested,
			duplicates = @duplicates,
			failed = @failed,
			mark_failures = @mark_failures,
			error_message = @error_message
		WHEN NOT MATCHED THEN INSERT (` + runColumns + `
		)
		VALUES (
			@run_id, @run_trigger, @status, @started_ts, @finished_ts,
			@listed, @skipped, @no_attachments, @ingested, @duplicates, @failed, @mark_failures,
			@error_message
		)
	`)

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: row.RunID},
		{Name: "run_trigger", Value: row.Trigger},
		{Name: "status", Value: row.Status},
		{Name: "started_ts", Value: row.StartedTS},
		{Name: "finished_ts", Value: row.FinishedTS},
		{Name: "listed", Value: row.Listed},
		{Name: "skipped", Value: row.Skipped},
		{Name: "no_attachments", Value: row.NoAttachments},
		{Name: "ingested", Value: row.Ingested},
		{Name: "duplicates", Value: row.Duplicates},
		{Name: "failed", Value: row.Failed},
		{Name: "mark_failures", Value: row.MarkFailures},
		{Name: "error_message", Value: row.ErrorMessage},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("UpsertRunWithClient: running merge query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("UpsertRunWithClient: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("UpsertRunWithClient: job error: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("run_id", row.RunID).Str("status", row.Status).Msg("Run saved")
	return nil
}

// QueryRunsWithClient returns runs newest first. An empty status matches all
// runs and runID, when set, selects a single run. limit <= 0 means no limit.
func QueryRunsWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, runID, status string, limit int) ([]*RunRow, error) {
	sql := `
		SELECT` + runColumns + `
		FROM ` + ref.String() + `
		WHERE (@run_id = '' OR run_id = @run_id)
		  AND (@status = '' OR status = @status)
		ORDER BY started_ts DESC, run_id DESC`
	if limit > 0 {
		sql += fmt.Sprintf("\n\t\tLIMIT %d", limit)
	}

	q := client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "status", Value: status},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryRunsWithClient: query read: %w", err)
	}

	var rows []*RunRow
	for {
		var r RunRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryRunsWithClient: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
