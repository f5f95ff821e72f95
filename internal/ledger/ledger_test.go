package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/mail-ledger/internal/domain"
	"github.com/dvloznov/mail-ledger/internal/logger"
	"github.com/shopspring/decimal"
)

// MockStore is a Store kept in memory. Func fields override behavior.
type MockStore struct {
	rows          []Row
	HasFunc       func(ctx context.Context, id string) (bool, error)
	InsertFunc    func(ctx context.Context, row Row) error
	SnapshotFunc  func(ctx context.Context, at time.Time) (string, error)
	snapshotCalls int
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) HasMessageID(ctx context.Context, id string) (bool, error) {
	if m.HasFunc != nil {
		return m.HasFunc(ctx, id)
	}
	for _, r := range m.rows {
		if r.MessageID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) InsertRow(ctx context.Context, row Row) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, row)
	}
	m.rows = append(m.rows, row)
	return nil
}

func (m *MockStore) CountRows(ctx context.Context) (int64, error) {
	return int64(len(m.rows)), nil
}

func (m *MockStore) ListRows(ctx context.Context) ([]Row, error) {
	return m.rows, nil
}

func (m *MockStore) Snapshot(ctx context.Context, at time.Time) (string, error) {
	m.snapshotCalls++
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx, at)
	}
	return BackupName("ledger", at), nil
}

func (m *MockStore) Name() string { return "memory" }
func (m *MockStore) Close() error { return nil }

func testRecord(id, amount string) domain.Record {
	return domain.Record{
		ReceivedDateShort: "24-jun",
		Issuer:            "COTEMAR",
		City:              "Tabasco",
		Amount:            amount,
		Link:              "https://mail.google.com/mail/u/0/#all/" + id,
		MessageID:         id,
		ReceivedAt:        time.Date(2024, time.June, 24, 9, 0, 0, 0, time.UTC),
	}
}

func newTestWriter(store Store) *Writer {
	return NewWriter(store, logger.NewWithWriter(&bytes.Buffer{}))
}

func TestWriter_AppendIsIdempotent(t *testing.T) {
	store := &MockStore{}
	w := newTestWriter(store)
	ctx := context.Background()

	first, err := w.Append(ctx, testRecord("m-1", "1500.00"))
	if err != nil {
		t.Fatalf("first Append() error = %v", err)
	}
	if !first.Inserted {
		t.Error("first Append() Inserted = false, want true")
	}

	for i := 0; i < 3; i++ {
		again, err := w.Append(ctx, testRecord("m-1", "1500.00"))
		if err != nil {
			t.Fatalf("repeat Append() error = %v", err)
		}
		if again.Inserted {
			t.Error("repeat Append() Inserted = true, want false")
		}
	}

	if len(store.rows) != 1 {
		t.Errorf("stored rows = %d, want 1", len(store.rows))
	}
}

func TestWriter_AppendFormatsAmount(t *testing.T) {
	tests := []struct {
		name        string
		amount      string
		wantDisplay string
		wantValue   string // empty means no numeric value
	}{
		{"currency text", "$2,300.50", "$2,300.50", "2300.50"},
		{"clean number", "1500.00", "$1,500.00", "1500"},
		{"large number", "1234567.8", "$1,234,567.80", "1234567.8"},
		{"sentinel stays text", domain.NotSpecified, domain.NotSpecified, ""},
		{"garbage stays text", "mil quinientos", "mil quinientos", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockStore{}
			w := newTestWriter(store)

			res, err := w.Append(context.Background(), testRecord("m-"+tt.name, tt.amount))
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if !res.Inserted {
				t.Fatal("Append() Inserted = false")
			}

			row := store.rows[0]
			if row.Amount != tt.wantDisplay {
				t.Errorf("Amount = %q, want %q", row.Amount, tt.wantDisplay)
			}
			if tt.wantValue == "" {
				if row.AmountValue.Valid {
					t.Errorf("AmountValue = %s, want none", row.AmountValue.Decimal)
				}
				return
			}
			want := decimal.RequireFromString(tt.wantValue)
			if !row.AmountValue.Valid || !row.AmountValue.Decimal.Equal(want) {
				t.Errorf("AmountValue = %v, want %s", row.AmountValue, want)
			}
		})
	}
}

func TestWriter_AppendRendersLink(t *testing.T) {
	store := &MockStore{}
	w := newTestWriter(store)

	if _, err := w.Append(context.Background(), testRecord("abc", "1")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	row := store.rows[0]
	want := `=HYPERLINK("https://mail.google.com/mail/u/0/#all/abc","Ver correo")`
	if row.Link != want {
		t.Errorf("Link = %q, want %q", row.Link, want)
	}
	if row.LinkURL != "https://mail.google.com/mail/u/0/#all/abc" {
		t.Errorf("LinkURL = %q", row.LinkURL)
	}
}

func TestWriter_AppendErrors(t *testing.T) {
	scanErr := errors.New("scan failed")
	insertErr := errors.New("disk full")

	tests := []struct {
		name    string
		store   *MockStore
		rec     domain.Record
		wantErr error
	}{
		{
			name:    "scan failure",
			store:   &MockStore{HasFunc: func(context.Context, string) (bool, error) { return false, scanErr }},
			rec:     testRecord("m-1", "1"),
			wantErr: scanErr,
		},
		{
			name:    "insert failure",
			store:   &MockStore{InsertFunc: func(context.Context, Row) error { return insertErr }},
			rec:     testRecord("m-1", "1"),
			wantErr: insertErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestWriter(tt.store).Append(context.Background(), tt.rec)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Append() error = %v, want %v", err, tt.wantErr)
			}
			if res.Inserted {
				t.Error("Append() Inserted = true on failure")
			}
		})
	}

	if _, err := newTestWriter(&MockStore{}).Append(context.Background(), testRecord("", "1")); err == nil {
		t.Error("Append() accepted a record without message id")
	}
}

func TestWriter_StatsAndBackupDoNotMutate(t *testing.T) {
	store := &MockStore{}
	w := newTestWriter(store)
	w.now = func() time.Time { return time.Date(2024, time.June, 24, 15, 4, 5, 0, time.UTC) }
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := w.Append(ctx, testRecord(id, "10")); err != nil {
			t.Fatalf("Append(%s) error = %v", id, err)
		}
	}

	stats, err := w.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Rows != 2 || stats.Storage != "memory" {
		t.Errorf("Stats() = %+v, want 2 rows in memory", stats)
	}

	loc, err := w.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if loc != "ledger_backup_20240624_150405" {
		t.Errorf("Backup() = %q", loc)
	}
	if len(store.rows) != 2 {
		t.Errorf("rows after backup = %d, want 2", len(store.rows))
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"$2,300.50", "2300.5", true},
		{"1500.00", "1500", true},
		{" 1 200 MXN", "1200", true},
		{"USD 99.9", "99.9", true},
		{"", "", false},
		{domain.NotSpecified, "", false},
		{"12abc", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		if ok != tt.wantOK {
			t.Errorf("ParseAmount(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatCurrency(t *testing.T) {
	tests := map[string]string{
		"0":         "$0.00",
		"5":         "$5.00",
		"999.999":   "$1,000.00",
		"2300.5":    "$2,300.50",
		"1000000":   "$1,000,000.00",
		"-45210.25": "-$45,210.25",
	}
	for in, want := range tests {
		if got := FormatCurrency(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatCurrency(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestExport_OmitsMessageID(t *testing.T) {
	rows := []Row{
		NewRow(testRecord("hidden-id-1", "$2,300.50")),
		NewRow(testRecord("hidden-id-2", domain.NotSpecified)),
	}

	var buf bytes.Buffer
	if err := Export(&buf, rows); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	recs, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("reading exported csv: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Export() wrote %d records, want header + 2", len(recs))
	}
	if strings.Join(recs[0], ",") != "Fecha,Emisor,Ciudad,Monto,Correo" {
		t.Errorf("header = %v", recs[0])
	}
	for i, rec := range recs[1:] {
		if len(rec) != len(VisibleColumns) {
			t.Errorf("row %d has %d fields, want %d", i+1, len(rec), len(VisibleColumns))
		}
		for _, field := range rec {
			if strings.HasPrefix(field, "hidden-id") {
				t.Errorf("row %d exposes the message id column: %v", i+1, rec)
			}
		}
	}
	if recs[1][3] != "$2,300.50" {
		t.Errorf("amount = %q, want $2,300.50", recs[1][3])
	}
	if recs[2][3] != domain.NotSpecified {
		t.Errorf("amount = %q, want %q", recs[2][3], domain.NotSpecified)
	}
}
