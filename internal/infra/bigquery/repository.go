// Package bigquery stores the ledger in a BigQuery table.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/mail-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// Config locates the ledger table.
type Config struct {
	ProjectID string
	Dataset   string
	Table     string
}

// LedgerStore is the BigQuery implementation of ledger.Store. It holds a
// shared client to avoid creating a new connection for each operation.
type LedgerStore struct {
	client *bigquery.Client
	ref    TableRef
}

var _ ledger.Store = (*LedgerStore)(nil)

// NewLedgerStore creates a client and makes sure the ledger table exists.
func NewLedgerStore(ctx context.Context, cfg Config) (*LedgerStore, error) {
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewLedgerStore: creating client: %w", err)
	}

	ref := TableRef{ProjectID: cfg.ProjectID, Dataset: cfg.Dataset, Table: cfg.Table}
	if err := EnsureLedgerTableWithClient(ctx, client, ref); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewLedgerStore: %w", err)
	}

	return &LedgerStore{client: client, ref: ref}, nil
}

// Close closes the BigQuery client connection.
func (s *LedgerStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *LedgerStore) HasMessageID(ctx context.Context, messageID string) (bool, error) {
	n, err := CountByMessageIDWithClient(ctx, s.client, s.ref, messageID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *LedgerStore) InsertRow(ctx context.Context, row ledger.Row) error {
	return InsertLedgerRowWithClient(ctx, s.client, s.ref, ToLedgerRow(row))
}

func (s *LedgerStore) CountRows(ctx context.Context) (int64, error) {
	return CountLedgerRowsWithClient(ctx, s.client, s.ref)
}

func (s *LedgerStore) ListRows(ctx context.Context) ([]ledger.Row, error) {
	rows, err := ListLedgerRowsWithClient(ctx, s.client, s.ref)
	if err != nil {
		return nil, err
	}

	out := make([]ledger.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromLedgerRow(r))
	}
	return out, nil
}

// Snapshot copies the table to <table>_backup_<timestamp> in the same dataset.
func (s *LedgerStore) Snapshot(ctx context.Context, at time.Time) (string, error) {
	dst, err := CopyLedgerTableWithClient(ctx, s.client, s.ref, ledger.BackupName(s.ref.Table, at))
	if err != nil {
		return "", err
	}
	return dst.ID(), nil
}

func (s *LedgerStore) Name() string {
	return s.ref.ID()
}

// ToLedgerRow converts a ledger row to its table representation.
func ToLedgerRow(r ledger.Row) *LedgerRow {
	out := &LedgerRow{
		ReceivedDate: r.ReceivedDate,
		Issuer:       r.Issuer,
		City:         r.City,
		Amount:       r.Amount,
		Link:         r.Link,
		MessageID:    r.MessageID,
		LinkURL:      r.LinkURL,
		ReceivedAt:   r.ReceivedAt.UTC(),
		ReceivedOn:   civil.DateOf(r.ReceivedAt.UTC()),
	}
	if r.AmountValue.Valid {
		out.AmountValue = r.AmountValue.Decimal.Rat()
	}
	return out
}

// FromLedgerRow converts a table row back to a ledger row.
func FromLedgerRow(r *LedgerRow) ledger.Row {
	out := ledger.Row{
		ReceivedDate: r.ReceivedDate,
		Issuer:       r.Issuer,
		City:         r.City,
		Amount:       r.Amount,
		Link:         r.Link,
		MessageID:    r.MessageID,
		LinkURL:      r.LinkURL,
		ReceivedAt:   r.ReceivedAt,
	}
	if r.AmountValue != nil {
		// NUMERIC carries at most nine fractional digits.
		if d, err := decimal.NewFromString(r.AmountValue.FloatString(9)); err == nil {
			out.AmountValue = decimal.NullDecimal{Decimal: d, Valid: true}
		}
	}
	return out
}
