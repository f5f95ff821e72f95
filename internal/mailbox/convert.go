package mailbox

import (
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dvloznov/mail-ledger/internal/domain"
	"google.golang.org/api/gmail/v1"
)

// BuildQuery combines the configured search with the attachment filter and
// the exclusion of already processed messages.
func BuildQuery(base, processedLabel string) string {
	parts := make([]string, 0, 3)
	if q := strings.TrimSpace(base); q != "" {
		parts = append(parts, q)
	}
	parts = append(parts, "has:attachment")
	if l := strings.TrimSpace(processedLabel); l != "" {
		// Gmail search addresses labels with spaces replaced by hyphens.
		parts = append(parts, "-label:"+strings.ReplaceAll(l, " ", "-"))
	}
	return strings.Join(parts, " ")
}

// ConvertMessage maps a full-format Gmail message to an InboundMessage.
// Attachments are listed in document order.
func ConvertMessage(msg *gmail.Message) domain.InboundMessage {
	out := domain.InboundMessage{MessageID: msg.Id}
	if msg.Payload == nil {
		out.ReceivedAt = internalDate(msg.InternalDate)
		return out
	}

	headers := msg.Payload.Headers
	out.Subject = header(headers, "Subject")
	out.Sender = header(headers, "From")

	out.ReceivedAt = internalDate(msg.InternalDate)
	if out.ReceivedAt.IsZero() {
		if t, err := mail.ParseDate(header(headers, "Date")); err == nil {
			out.ReceivedAt = t
		}
	}

	out.Attachments = collectAttachments(msg.Payload)
	return out
}

func internalDate(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func collectAttachments(part *gmail.MessagePart) []domain.Attachment {
	var out []domain.Attachment

	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		out = append(out, domain.Attachment{
			Filename:     part.Filename,
			MimeType:     strings.ToLower(strings.TrimSpace(part.MimeType)),
			AttachmentID: part.Body.AttachmentId,
			SizeBytes:    part.Body.Size,
		})
	}

	for _, p := range part.Parts {
		out = append(out, collectAttachments(p)...)
	}
	return out
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// DecodeAttachmentData decodes Gmail's base64url payload, padded or not.
func DecodeAttachmentData(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return nil, fmt.Errorf("decoding attachment data: %w", err)
	}
	return b, nil
}
