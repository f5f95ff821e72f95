package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// LedgerRow mirrors one row of the ledger table.
type LedgerRow struct {
	ReceivedDate string `bigquery:"received_date"` // REQUIRED, display date "24-jun"
	Issuer       string `bigquery:"issuer"`        // REQUIRED
	City         string `bigquery:"city"`          // REQUIRED
	Amount       string `bigquery:"amount"`        // REQUIRED, display text
	Link         string `bigquery:"link"`          // REQUIRED, HYPERLINK formula
	MessageID    string `bigquery:"message_id"`    // REQUIRED, identity column

	AmountValue *big.Rat   `bigquery:"amount_value"` // NULLABLE NUMERIC
	LinkURL     string     `bigquery:"link_url"`     // REQUIRED
	ReceivedAt  time.Time  `bigquery:"received_at"`  // REQUIRED TIMESTAMP
	ReceivedOn  civil.Date `bigquery:"received_on"`  // REQUIRED DATE, partition-friendly
}

// TableRef names a fully qualified table.
type TableRef struct {
	ProjectID string
	Dataset   string
	Table     string
}

// String renders the backtick-quoted identifier used in SQL.
func (t TableRef) String() string {
	return fmt.Sprintf("`%s.%s.%s`", t.ProjectID, t.Dataset, t.Table)
}

// ID renders project.dataset.table without quoting.
func (t TableRef) ID() string {
	return fmt.Sprintf("%s.%s.%s", t.ProjectID, t.Dataset, t.Table)
}

// ledgerSchema is used when the table does not exist yet.
var ledgerSchema = bigquery.Schema{
	{Name: "received_date", Type: bigquery.StringFieldType, Required: true},
	{Name: "issuer", Type: bigquery.StringFieldType, Required: true},
	{Name: "city", Type: bigquery.StringFieldType, Required: true},
	{Name: "amount", Type: bigquery.StringFieldType, Required: true},
	{Name: "link", Type: bigquery.StringFieldType, Required: true},
	{Name: "message_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "amount_value", Type: bigquery.NumericFieldType},
	{Name: "link_url", Type: bigquery.StringFieldType, Required: true},
	{Name: "received_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "received_on", Type: bigquery.DateFieldType, Required: true},
}
