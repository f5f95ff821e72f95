package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/mail-ledger/internal/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

type countRow struct {
	N int64 `bigquery:"n"`
}

// EnsureLedgerTableWithClient creates the ledger table when it is missing.
func EnsureLedgerTableWithClient(ctx context.Context, client *bigquery.Client, ref TableRef) error {
	if err := ensureTableWithClient(ctx, client, ref, &bigquery.TableMetadata{
		Schema:      ledgerSchema,
		Description: "Requests ingested from mailbox attachments",
	}); err != nil {
		return fmt.Errorf("EnsureLedgerTableWithClient: %w", err)
	}
	return nil
}

func ensureTableWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, md *bigquery.TableMetadata) error {
	table := client.DatasetInProject(ref.ProjectID, ref.Dataset).Table(ref.Table)

	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("reading metadata of %s: %w", ref.ID(), err)
	}

	if err := table.Create(ctx, md); err != nil {
		return fmt.Errorf("creating table %s: %w", ref.ID(), err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("table", ref.ID()).Msg("Created BigQuery table")
	return nil
}

// CountByMessageIDWithClient returns how many rows carry messageID.
func CountByMessageIDWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, messageID string) (int64, error) {
	q := client.Query(`
		SELECT COUNT(1) AS n
		FROM ` + ref.String() + `
		WHERE message_id = @message_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "message_id", Value: messageID},
	}

	n, err := readCount(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("CountByMessageIDWithClient: %w", err)
	}
	return n, nil
}

// InsertLedgerRowWithClient appends row with a DML statement so that it is
// visible to the next COUNT as soon as the job finishes.
func InsertLedgerRowWithClient(ctx context.Context, client *bigquery.Client, ref TableRef, row *LedgerRow) error {
	q := client.Query(`
		INSERT INTO ` + ref.String() + ` (
			received_date, issuer, city, amount, link, message_id,
			amount_value, link_url, received_at, received_on
		)
		VALUES (
			@received_date, @issuer, @city, @amount, @link, @message_id,
			SAFE_CAST(NULLIF(@amount_value, '') AS NUMERIC), @link_url, @received_at, @received_on
		)
	`)

	amountValue := ""
	if row.AmountValue != nil {
		amountValue = row.AmountValue.FloatString(9)
	}

	q.Parameters = []bigquery.QueryParameter{
		{Name: "received_date", Value: row.ReceivedDate},
		{Name: "issuer", Value: row.Issuer},
		{Name: "city", Value: row.City},
		{Name: "amount", Value: row.Amount},
		{Name: "link", Value: row.Link},
		{Name: "message_id", Value: row.MessageID},
		{Name: "amount_value", Value: amountValue},
		{Name: "link_url", Value: row.LinkURL},
		{Name: "received_at", Value: row.ReceivedAt},
		{Name: "received_on", Value: row.ReceivedOn},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("InsertLedgerRowWithClient: running insert query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("InsertLedgerRowWithClient: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("InsertLedgerRowWithClient: job error: %w", err)
	}

	return nil
}

// CountLedgerRowsWithClient returns the number of rows in the table.
func CountLedgerRowsWithClient(ctx context.Context, client *bigquery.Client, ref TableRef) (int64, error) {
	q := client.Query(`SELECT COUNT(1) AS n FROM ` + ref.String())

	n, err := readCount(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("CountLedgerRowsWithClient: %w", err)
	}
	return n, nil
}

// ListLedgerRowsWithClient returns every row ordered by receipt time.
func ListLedgerRowsWithClient(ctx context.Context, client *bigquery.Client, ref TableRef) ([]*LedgerRow, error) {
	q := client.Query(`
		SELECT
			received_date,
			issuer,
			city,
			amount,
			link,
			message_id,
			amount_value,
			link_url,
			received_at,
			received_on
		FROM ` + ref.String() + `
		ORDER BY received_at, message_id
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListLedgerRowsWithClient: query read: %w", err)
	}

	var rows []*LedgerRow
	for {
		var r LedgerRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListLedgerRowsWithClient: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// CopyLedgerTableWithClient copies src into a new table named dst and fails
// if dst already holds data.
func CopyLedgerTableWithClient(ctx context.Context, client *bigquery.Client, src TableRef, dst string) (TableRef, error) {
	dataset := client.DatasetInProject(src.ProjectID, src.Dataset)
	copier := dataset.Table(dst).CopierFrom(dataset.Table(src.Table))
	copier.WriteDisposition = bigquery.WriteEmpty
	copier.CreateDisposition = bigquery.CreateIfNeeded

	job, err := copier.Run(ctx)
	if err != nil {
		return TableRef{}, fmt.Errorf("CopyLedgerTableWithClient: starting copy: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return TableRef{}, fmt.Errorf("CopyLedgerTableWithClient: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return TableRef{}, fmt.Errorf("CopyLedgerTableWithClient: job error: %w", err)
	}

	copied := TableRef{ProjectID: src.ProjectID, Dataset: src.Dataset, Table: dst}
	log := logger.FromContext(ctx)
	log.Info().Str("source", src.ID()).Str("snapshot", copied.ID()).Msg("Ledger table copied")
	return copied, nil
}

func readCount(ctx context.Context, q *bigquery.Query) (int64, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("query read: %w", err)
	}

	var row countRow
	err = it.Next(&row)
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("iter next: %w", err)
	}
	return row.N, nil
}
