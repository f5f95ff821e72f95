package domain

import (
	"time"
)

// MimePDF is the only media type eligible for extraction.
const MimePDF = "application/pdf"

// Attachment is one file part of an inbound message, as enumerated from the
// provider's part tree. It is never mutated after enumeration.
type Attachment struct {
	Filename     string // original filename as sent
	MimeType     string // declared media type of the part
	AttachmentID string // opaque provider handle used for download
	SizeBytes    int64
}

// IsPDF reports whether the attachment declares the PDF media type.
func (a Attachment) IsPDF() bool {
	return a.MimeType == MimePDF
}

// InboundMessage is a mailbox message with the metadata needed to build a
// ledger record. MessageID is the idempotency key for the whole pipeline.
type InboundMessage struct {
	MessageID   string
	Subject     string
	Sender      string // raw From header, e.g. "Acme Ops <ops@acme.mx>"
	ReceivedAt  time.Time
	Attachments []Attachment
}
