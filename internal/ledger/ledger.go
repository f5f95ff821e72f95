// Package ledger appends records to durable storage at most once per message.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/mail-ledger/internal/domain"
	"github.com/rs/zerolog"
)

// Store is the storage backend behind a Writer.
// This interface enables mocking and testing of the writer without a database.
type Store interface {
	// HasMessageID scans the hidden identity column.
	HasMessageID(ctx context.Context, messageID string) (bool, error)
	// InsertRow appends a row and returns only once it is durable.
	InsertRow(ctx context.Context, row Row) error
	// CountRows returns the number of data rows, header excluded.
	CountRows(ctx context.Context) (int64, error)
	// ListRows returns every row in insertion order.
	ListRows(ctx context.Context) ([]Row, error)
	// Snapshot copies the ledger to a location derived from at and returns it.
	Snapshot(ctx context.Context, at time.Time) (string, error)
	// Name identifies the storage, e.g. a file name or table id.
	Name() string
	Close() error
}

// AppendResult reports whether a row was written.
type AppendResult struct {
	Inserted bool
}

// Stats describes the ledger without reading row contents.
type Stats struct {
	Rows    int64  `json:"rows"`
	Storage string `json:"storage"`
}

// Writer is the idempotent front of a Store. A single Writer must be the
// only writer of its storage.
type Writer struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewWriter wraps store.
func NewWriter(store Store, log zerolog.Logger) *Writer {
	return &Writer{store: store, log: log, now: time.Now}
}

// Append writes rec unless a row with the same message id already exists.
func (w *Writer) Append(ctx context.Context, rec domain.Record) (AppendResult, error) {
	if rec.MessageID == "" {
		return AppendResult{}, fmt.Errorf("Append: record has no message id")
	}

	exists, err := w.store.HasMessageID(ctx, rec.MessageID)
	if err != nil {
		return AppendResult{}, fmt.Errorf("Append: checking message_id: %w", err)
	}
	if exists {
		w.log.Info().
			Str("message_id", rec.MessageID).
			Msg("Record already in ledger, skipping")
		return AppendResult{Inserted: false}, nil
	}

	row := NewRow(rec)
	if err := w.store.InsertRow(ctx, row); err != nil {
		return AppendResult{}, fmt.Errorf("Append: inserting row: %w", err)
	}

	w.log.Info().
		Str("message_id", rec.MessageID).
		Str("issuer", row.Issuer).
		Str("city", row.City).
		Str("amount", row.Amount).
		Bool("amount_numeric", row.AmountValue.Valid).
		Msg("Record appended to ledger")

	return AppendResult{Inserted: true}, nil
}

// Stats returns the row count and storage name.
func (w *Writer) Stats(ctx context.Context) (Stats, error) {
	n, err := w.store.CountRows(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("Stats: counting rows: %w", err)
	}
	return Stats{Rows: n, Storage: w.store.Name()}, nil
}

// Backup snapshots the ledger to a timestamped location and returns it.
func (w *Writer) Backup(ctx context.Context) (string, error) {
	location, err := w.store.Snapshot(ctx, w.now())
	if err != nil {
		return "", fmt.Errorf("Backup: %w", err)
	}
	w.log.Info().Str("location", location).Msg("Ledger backup written")
	return location, nil
}

// Rows returns all stored rows.
func (w *Writer) Rows(ctx context.Context) ([]Row, error) {
	rows, err := w.store.ListRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("Rows: %w", err)
	}
	return rows, nil
}

// Close releases the underlying store.
func (w *Writer) Close() error {
	return w.store.Close()
}

// BackupName is the timestamped base name used by stores for snapshots.
func BackupName(base string, at time.Time) string {
	return fmt.Sprintf("%s_backup_%s", base, at.UTC().Format("20060102_150405"))
}
