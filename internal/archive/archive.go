// Package archive keeps a copy of uploaded statement files in Google Cloud
// Storage.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

const uploadTimeout = 2 * time.Minute

// Archiver stores the raw bytes of an uploaded file and returns its URI.
type Archiver interface {
	Archive(ctx context.Context, filename string, data []byte) (string, error)
}

// GCSArchiver writes files to a bucket under statements/YYYY/MM/DD/.
// It assumes Application Default Credentials are configured.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	now    func() time.Time
	newID  func() string
}

// NewGCSArchiver opens a storage client for bucket.
func NewGCSArchiver(ctx context.Context, bucket string) (*GCSArchiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: create storage client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket, now: time.Now, newID: uuid.NewString}, nil
}

// Close releases the storage client.
func (a *GCSArchiver) Close() error {
	return a.client.Close()
}

// Archive uploads data and returns its gs:// URI.
func (a *GCSArchiver) Archive(ctx context.Context, filename string, data []byte) (string, error) {
	object := ObjectName(a.now(), a.newID(), filename)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "text/csv"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("archive: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("archive: finalize %s: %w", object, err)
	}
	return "gs://" + a.bucket + "/" + object, nil
}

// Fetch downloads the object at a gs:// URI.
func (a *GCSArchiver) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", uri, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", uri, err)
	}
	return data, nil
}

// ObjectName builds statements/YYYY/MM/DD/<id>-<base name>.
func ObjectName(t time.Time, id, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "statement.csv"
	}
	return fmt.Sprintf("statements/%s/%s-%s", t.UTC().Format("2006/01/02"), id, base)
}

// ParseURI splits gs://bucket/object.
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

// FilenameFromURI returns the last path element of a gs:// URI.
// "gs://bucket/folder/file.csv" gives "file.csv".
func FilenameFromURI(uri string) string {
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) < 2 {
		return parts[0]
	}
	return path.Base(parts[1])
}
