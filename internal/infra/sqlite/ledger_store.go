// Package sqlite stores the ledger in a local SQLite file.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/mail-ledger/internal/ledger"
	"github.com/dvloznov/mail-ledger/internal/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config locates the database file and its backup directory.
type Config struct {
	Path      string
	BackupDir string
}

// LedgerStore implements ledger.Store on SQLite.
type LedgerStore struct {
	db        *sqlx.DB
	path      string
	backupDir string
}

var _ ledger.Store = (*LedgerStore)(nil)

type ledgerRow struct {
	ReceivedDate string              `db:"received_date"`
	Issuer       string              `db:"issuer"`
	City         string              `db:"city"`
	Amount       string              `db:"amount"`
	Link         string              `db:"link"`
	MessageID    string              `db:"message_id"`
	AmountValue  decimal.NullDecimal `db:"amount_value"`
	LinkURL      string              `db:"link_url"`
	ReceivedAt   time.Time           `db:"received_at"`
}

// NewLedgerStore opens (creating if needed) the database and applies
// migrations. An error here means the ledger is unusable.
func NewLedgerStore(cfg Config) (*LedgerStore, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("NewLedgerStore: creating %s: %w", dir, err)
		}
	}

	db, err := sqlx.Open("sqlite3", cfg.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("NewLedgerStore: opening %s: %w", cfg.Path, err)
	}
	// One connection keeps the read-then-write sequence on a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewLedgerStore: ping: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewLedgerStore: goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewLedgerStore: migrating: %w", err)
	}

	return &LedgerStore{db: db, path: cfg.Path, backupDir: cfg.BackupDir}, nil
}

func (s *LedgerStore) HasMessageID(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM ledger WHERE message_id = ?)", messageID)
	if err != nil {
		return false, fmt.Errorf("HasMessageID: %w", err)
	}
	return exists, nil
}

func (s *LedgerStore) InsertRow(ctx context.Context, row ledger.Row) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO ledger (
			received_date, issuer, city, amount, link, message_id,
			amount_value, link_url, received_at
		) VALUES (
			:received_date, :issuer, :city, :amount, :link, :message_id,
			:amount_value, :link_url, :received_at
		)`, toLedgerRow(row))
	if err != nil {
		return fmt.Errorf("InsertRow: %w", err)
	}
	return nil
}

func (s *LedgerStore) CountRows(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM ledger"); err != nil {
		return 0, fmt.Errorf("CountRows: %w", err)
	}
	return n, nil
}

func (s *LedgerStore) ListRows(ctx context.Context) ([]ledger.Row, error) {
	var rows []ledgerRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT received_date, issuer, city, amount, link, message_id,
		       amount_value, link_url, received_at
		FROM ledger
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListRows: %w", err)
	}

	out := make([]ledger.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRow())
	}
	return out, nil
}

// Snapshot writes a consistent copy of the database with VACUUM INTO.
func (s *LedgerStore) Snapshot(ctx context.Context, at time.Time) (string, error) {
	dir := s.backupDir
	if dir == "" {
		dir = filepath.Dir(s.path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("Snapshot: creating %s: %w", dir, err)
	}

	base := strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
	target := filepath.Join(dir, ledger.BackupName(base, at)+".db")

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		return "", fmt.Errorf("Snapshot: vacuum into %s: %w", target, err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("snapshot", target).Msg("Ledger snapshot written")
	return target, nil
}

func (s *LedgerStore) Name() string {
	return filepath.Base(s.path)
}

func (s *LedgerStore) Close() error {
	return s.db.Close()
}

func toLedgerRow(r ledger.Row) ledgerRow {
	return ledgerRow{
		ReceivedDate: r.ReceivedDate,
		Issuer:       r.Issuer,
		City:         r.City,
		Amount:       r.Amount,
		Link:         r.Link,
		MessageID:    r.MessageID,
		AmountValue:  r.AmountValue,
		LinkURL:      r.LinkURL,
		ReceivedAt:   r.ReceivedAt.UTC(),
	}
}

func (r ledgerRow) toRow() ledger.Row {
	return ledger.Row{
		ReceivedDate: r.ReceivedDate,
		Issuer:       r.Issuer,
		City:         r.City,
		Amount:       r.Amount,
		Link:         r.Link,
		MessageID:    r.MessageID,
		AmountValue:  r.AmountValue,
		LinkURL:      r.LinkURL,
		ReceivedAt:   r.ReceivedAt,
	}
}
