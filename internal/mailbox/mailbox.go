// Package mailbox lists, reads and labels inbound request messages.
package mailbox

import (
	"context"

	"github.com/dvloznov/mail-ledger/internal/domain"
)

// Mailbox provides the message operations the ingestion pipeline needs.
// This interface enables mocking and testing of the pipeline without a
// mail provider.
type Mailbox interface {
	// ListNewMessages returns ids of messages with attachments that have not
	// been marked processed yet, newest first.
	ListNewMessages(ctx context.Context) ([]string, error)

	// GetMessage fetches headers and the attachment tree of one message.
	GetMessage(ctx context.Context, messageID string) (*domain.InboundMessage, error)

	// DownloadAttachment returns the decoded bytes of one attachment.
	DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)

	// MarkProcessed labels the message so it is not listed again.
	MarkProcessed(ctx context.Context, messageID string) error
}
