// Package archive keeps copies of ingested attachments and ledger backups in
// Google Cloud Storage.
package archive

import (
	"context"
)

// Archiver provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type Archiver interface {
	// StoreAttachment writes attachment bytes under the message's folder and
	// returns the gs:// URI.
	StoreAttachment(ctx context.Context, messageID, filename string, data []byte) (string, error)

	// UploadFile uploads a local file under the backups folder and returns
	// the gs:// URI.
	UploadFile(ctx context.Context, filePath string) (string, error)

	// Fetch downloads the object at a gs:// URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}
