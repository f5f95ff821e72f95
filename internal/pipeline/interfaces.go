package pipeline

import (
	"context"

	"github.com/dvloznov/mail-ledger/internal/domain"
	"github.com/dvloznov/mail-ledger/internal/ledger"
)

// Ledger is the subset of ledger.Writer the pipeline needs.
// This interface enables mocking and testing of the processor without storage.
type Ledger interface {
	// Append writes the record unless its message id is already present.
	Append(ctx context.Context, rec domain.Record) (ledger.AppendResult, error)

	// Stats is used as a liveness check before each batch.
	Stats(ctx context.Context) (ledger.Stats, error)
}

// Extractor recovers fields from document text and subject lines.
type Extractor interface {
	ExtractIssuer(documentText string) string
	ExtractSubjectFields(subject string) domain.SubjectFields
}

// RecordAssembler builds a ledger record from a message and extraction output.
type RecordAssembler interface {
	Assemble(msg domain.InboundMessage, issuer string, fields domain.SubjectFields) domain.Record
}

// AttachmentArchiver keeps a copy of each processed attachment.
type AttachmentArchiver interface {
	StoreAttachment(ctx context.Context, messageID, filename string, data []byte) (string, error)
}
