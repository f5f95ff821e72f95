// Package assembler turns a message plus extraction output into a ledger
// record. It has no side effects.
package assembler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/mail-ledger/internal/domain"
)

const (
	// DefaultLinkTemplate opens the message in the Gmail web client.
	DefaultLinkTemplate = "https://mail.google.com/mail/u/0/#all/{message_id}"

	linkPlaceholder = "{message_id}"
)

// monthAbbrev is indexed by time.Month-1. It does not depend on the host locale.
var monthAbbrev = [12]string{
	"ene", "feb", "mar", "abr", "may", "jun",
	"jul", "ago", "sep", "oct", "nov", "dic",
}

var (
	displayNamePattern   = regexp.MustCompile(`^\s*"?([^"<]*?)"?\s*<[^>]*>`)
	localPartPattern     = regexp.MustCompile(`([A-Za-z0-9._%+\-]+)@`)
	subjectIssuerPattern = regexp.MustCompile(`(?i)\b(?:solicitud|pedido|orden)\s+(?:de\s+)?([^\-$\d]+?)\s*(?:-|\$|\d|$)`)
)

// Config holds assembler settings.
type Config struct {
	// LinkTemplate must contain {message_id}. Empty means DefaultLinkTemplate.
	LinkTemplate string

	// Location is the zone the received date is shown in. Nil means UTC.
	Location *time.Location
}

// Assembler builds records. The zero value is not usable; call New.
type Assembler struct {
	linkTemplate string
	loc          *time.Location
}

// New validates cfg and returns an Assembler.
func New(cfg Config) (*Assembler, error) {
	tmpl := cfg.LinkTemplate
	if tmpl == "" {
		tmpl = DefaultLinkTemplate
	}
	if !strings.Contains(tmpl, linkPlaceholder) {
		return nil, fmt.Errorf("New: link template %q has no %s placeholder", tmpl, linkPlaceholder)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Assembler{linkTemplate: tmpl, loc: loc}, nil
}

// Assemble builds the record for msg. issuer is the extracted issuer or
// domain.Unidentified; empty fields fall back to domain.NotSpecified.
func (a *Assembler) Assemble(msg domain.InboundMessage, issuer string, fields domain.SubjectFields) domain.Record {
	if issuer == "" || issuer == domain.Unidentified {
		issuer = IssuerFromSender(msg.Sender, msg.Subject)
	}

	return domain.Record{
		ReceivedDateShort: ShortDate(msg.ReceivedAt.In(a.loc)),
		Issuer:            issuer,
		City:              orNotSpecified(fields.City),
		Amount:            orNotSpecified(fields.Amount),
		Link:              a.Link(msg.MessageID),
		MessageID:         msg.MessageID,
		ReceivedAt:        msg.ReceivedAt,
	}
}

// Link renders the deep link for a message id.
func (a *Assembler) Link(messageID string) string {
	return strings.ReplaceAll(a.linkTemplate, linkPlaceholder, url.PathEscape(messageID))
}

// ShortDate formats t as "{day}-{month}", e.g. "24-jun".
func ShortDate(t time.Time) string {
	return fmt.Sprintf("%d-%s", t.Day(), monthAbbrev[t.Month()-1])
}

// IssuerFromSender derives an issuer name from the From header, trying in
// order: the display name, the address local part, a "solicitud de NAME"
// phrase in the subject, and finally the raw sender.
func IssuerFromSender(sender, subject string) string {
	if m := displayNamePattern.FindStringSubmatch(sender); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	if m := localPartPattern.FindStringSubmatch(sender); m != nil {
		return m[1]
	}
	if m := subjectIssuerPattern.FindStringSubmatch(subject); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	return sender
}

func orNotSpecified(v string) string {
	if strings.TrimSpace(v) == "" {
		return domain.NotSpecified
	}
	return v
}
