package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/storage"
)

const (
	backupsFolder = "backups"
	uploadTimeout = 2 * time.Minute
)

// GCSConfig selects the bucket and the object prefix.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSArchive is the Google Cloud Storage implementation of Archiver.
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ Archiver = (*GCSArchive)(nil)

// NewGCSArchive creates a storage client using Application Default
// Credentials (gcloud auth application-default login).
func NewGCSArchive(ctx context.Context, cfg GCSConfig) (*GCSArchive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("NewGCSArchive: bucket is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSArchive: create storage client: %w", err)
	}

	return &GCSArchive{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Close closes the storage client.
func (a *GCSArchive) Close() error {
	return a.client.Close()
}

func (a *GCSArchive) StoreAttachment(ctx context.Context, messageID, filename string, data []byte) (string, error) {
	object := ObjectName(a.prefix, messageID, filename)
	if err := a.write(ctx, object, "application/pdf", bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("StoreAttachment: %w", err)
	}
	return URI(a.bucket, object), nil
}

func (a *GCSArchive) UploadFile(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer f.Close()

	object := path.Join(a.prefix, backupsFolder, filepath.Base(filePath))
	if err := a.write(ctx, object, "application/octet-stream", f); err != nil {
		return "", fmt.Errorf("UploadFile: %w", err)
	}
	return URI(a.bucket, object), nil
}

func (a *GCSArchive) write(ctx context.Context, object, contentType string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload of %s: %w", object, err)
	}
	return nil
}

// Fetch downloads the file bytes from the given GCS URI.
func (a *GCSArchive) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// ObjectName builds <prefix>/<message id>/<sanitized filename>.
func ObjectName(prefix, messageID, filename string) string {
	name := SanitizeFilename(filename)
	if name == "" {
		name = "attachment.pdf"
	}
	return path.Join(strings.Trim(prefix, "/"), SanitizeFilename(messageID), name)
}

// SanitizeFilename keeps letters, digits, dot, dash and underscore, and
// replaces everything else with an underscore.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// URI renders gs://bucket/object.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseURI splits gs://bucket/path/to/object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// IsURI reports whether s looks like a gs:// URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, "gs://")
}

// FilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
