package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/mail-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Column names in storage order. The first five are visible; message_id is
// the hidden identity column. Machine columns follow it.
const (
	ColReceivedDate = "received_date"
	ColIssuer       = "issuer"
	ColCity         = "city"
	ColAmount       = "amount"
	ColLink         = "link"
	ColMessageID    = "message_id"
	ColAmountValue  = "amount_value"
	ColLinkURL      = "link_url"
	ColReceivedAt   = "received_at"
)

// VisibleColumns are shown to people, in display order.
var VisibleColumns = []string{ColReceivedDate, ColIssuer, ColCity, ColAmount, ColLink}

// HeaderLabels are the display headers for VisibleColumns.
var HeaderLabels = []string{"Fecha", "Emisor", "Ciudad", "Monto", "Correo"}

const linkLabel = "Ver correo"

// Row is one stored ledger line.
type Row struct {
	ReceivedDate string
	Issuer       string
	City         string
	Amount       string // "$2,300.50" when parseable, otherwise the original text
	Link         string // spreadsheet hyperlink formula
	MessageID    string

	AmountValue decimal.NullDecimal // set only when Amount parsed
	LinkURL     string
	ReceivedAt  time.Time
}

// NewRow formats a record for storage. An unparseable amount is kept as text
// and never causes an error.
func NewRow(rec domain.Record) Row {
	row := Row{
		ReceivedDate: rec.ReceivedDateShort,
		Issuer:       rec.Issuer,
		City:         rec.City,
		Amount:       rec.Amount,
		Link:         Hyperlink(rec.Link, linkLabel),
		MessageID:    rec.MessageID,
		LinkURL:      rec.Link,
		ReceivedAt:   rec.ReceivedAt,
	}

	if d, ok := ParseAmount(rec.Amount); ok {
		row.Amount = FormatCurrency(d)
		row.AmountValue = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return row
}

// Visible returns the display cells of a row in VisibleColumns order.
func (r Row) Visible() []string {
	return []string{r.ReceivedDate, r.Issuer, r.City, r.Amount, r.Link}
}

var amountNoise = strings.NewReplacer(
	"$", "",
	",", "",
	" ", "",
	"\u00a0", "",
	"MXN", "",
	"mxn", "",
	"USD", "",
	"usd", "",
)

// ParseAmount strips currency symbols and thousands separators and parses
// the rest as a decimal.
func ParseAmount(text string) (decimal.Decimal, bool) {
	cleaned := amountNoise.Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// FormatCurrency renders d as "$1,234.50".
func FormatCurrency(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	fixed := d.StringFixed(2)
	intPart, frac := fixed, ""
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		intPart, frac = fixed[:i], fixed[i:]
	}

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + "$" + b.String() + frac
}

// Hyperlink renders a spreadsheet HYPERLINK formula. Quotes inside the URL
// or label are doubled.
func Hyperlink(url, label string) string {
	if url == "" {
		return ""
	}
	esc := func(s string) string { return strings.ReplaceAll(s, `"`, `""`) }
	return fmt.Sprintf(`=HYPERLINK("%s","%s")`, esc(url), esc(label))
}
