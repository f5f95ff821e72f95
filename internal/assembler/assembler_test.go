package assembler

import (
	"testing"
	"time"

	"github.com/dvloznov/mail-ledger/internal/domain"
)

func newAssembler(t *testing.T) *Assembler {
	t.Helper()
	a, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestAssemble(t *testing.T) {
	a := newAssembler(t)
	msg := domain.InboundMessage{
		MessageID:  "18f2a9c0d1e2",
		Subject:    "Solicitud - Recurso Tabasco $1,500.00 - entrega",
		Sender:     "Compras Cotemar <compras@cotemar.com.mx>",
		ReceivedAt: time.Date(2024, time.June, 24, 10, 30, 0, 0, time.UTC),
	}

	got := a.Assemble(msg, "COTEMAR S.A. DE C.V.", domain.SubjectFields{Amount: "1500.00", City: "Tabasco"})

	want := domain.Record{
		ReceivedDateShort: "24-jun",
		Issuer:            "COTEMAR S.A. DE C.V.",
		City:              "Tabasco",
		Amount:            "1500.00",
		Link:              "https://mail.google.com/mail/u/0/#all/18f2a9c0d1e2",
		MessageID:         "18f2a9c0d1e2",
		ReceivedAt:        msg.ReceivedAt,
	}
	if got != want {
		t.Errorf("Assemble() = %+v\nwant %+v", got, want)
	}
}

func TestAssemble_Sentinels(t *testing.T) {
	a := newAssembler(t)
	msg := domain.InboundMessage{
		MessageID:  "abc",
		Sender:     "Operaciones Diavaz <ops@diavaz.com>",
		ReceivedAt: time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
	}

	got := a.Assemble(msg, domain.Unidentified, domain.SubjectFields{})

	if got.Issuer != "Operaciones Diavaz" {
		t.Errorf("Issuer = %q, want sender display name", got.Issuer)
	}
	if got.City != domain.NotSpecified {
		t.Errorf("City = %q, want %q", got.City, domain.NotSpecified)
	}
	if got.Amount != domain.NotSpecified {
		t.Errorf("Amount = %q, want %q", got.Amount, domain.NotSpecified)
	}
	if got.ReceivedDateShort != "5-ene" {
		t.Errorf("ReceivedDateShort = %q, want 5-ene", got.ReceivedDateShort)
	}
}

func TestIssuerFromSender(t *testing.T) {
	tests := []struct {
		name    string
		sender  string
		subject string
		want    string
	}{
		{"quoted display name", `"Acme Ops" <ops@acme.mx>`, "", "Acme Ops"},
		{"bare display name", "Acme Ops <ops@acme.mx>", "", "Acme Ops"},
		{"empty display name falls to local part", "<facturacion@pemex.com>", "", "facturacion"},
		{"plain address", "j.perez@proveedor.mx", "", "j.perez"},
		{"subject phrase", "Recepcion", "Solicitud de Servicios Cotemar - Tabasco", "Servicios Cotemar"},
		{"subject phrase without de", "Recepcion", "Pedido Naviera Sur $300", "Naviera Sur"},
		{"raw sender", "Buzon compartido", "hola", "Buzon compartido"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IssuerFromSender(tt.sender, tt.subject); got != tt.want {
				t.Errorf("IssuerFromSender(%q, %q) = %q, want %q", tt.sender, tt.subject, got, tt.want)
			}
		})
	}
}

func TestShortDate(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2024, time.June, 24, 0, 0, 0, 0, time.UTC), "24-jun"},
		{time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC), "1-ago"},
		{time.Date(2023, time.December, 31, 23, 59, 0, 0, time.UTC), "31-dic"},
		{time.Date(2025, time.January, 9, 0, 0, 0, 0, time.UTC), "9-ene"},
	}
	for _, tt := range tests {
		if got := ShortDate(tt.in); got != tt.want {
			t.Errorf("ShortDate(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_LinkTemplate(t *testing.T) {
	a, err := New(Config{LinkTemplate: "https://mail.example.com/view?id={message_id}"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := a.Link("m 1"); got != "https://mail.example.com/view?id=m%201" {
		t.Errorf("Link() = %q", got)
	}

	if _, err := New(Config{LinkTemplate: "https://mail.example.com/"}); err == nil {
		t.Error("New() accepted a template without placeholder")
	}
}

func TestAssemble_ReceivedDateInLocation(t *testing.T) {
	// 20:00 on 24 June in Mexico is already 25 June in UTC.
	received := time.Date(2024, time.June, 25, 2, 0, 0, 0, time.UTC)
	msg := domain.InboundMessage{MessageID: "m-1", Sender: "ops@cotemar.com.mx", ReceivedAt: received}

	tests := []struct {
		name string
		loc  *time.Location
		want string
	}{
		{name: "default utc", loc: nil, want: "25-jun"},
		{name: "central mexico", loc: time.FixedZone("CST", -6*60*60), want: "24-jun"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(Config{Location: tt.loc})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			rec := a.Assemble(msg, "PEMEX", domain.SubjectFields{})
			if rec.ReceivedDateShort != tt.want {
				t.Errorf("ReceivedDateShort = %q, want %q", rec.ReceivedDateShort, tt.want)
			}
			if !rec.ReceivedAt.Equal(received) {
				t.Errorf("ReceivedAt = %v, want %v", rec.ReceivedAt, received)
			}
		})
	}
}
