// Package archive keeps the raw aggregator payloads of every sync job in
// Cloud Storage, so a job's input can be inspected or replayed later.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
)

// ObjectWriter opens a writer for one object. Closing it finalizes the upload.
type ObjectWriter interface {
	NewWriter(ctx context.Context, name string) io.WriteCloser
}

// GCSBucket is the ObjectWriter for a Cloud Storage bucket.
type GCSBucket struct {
	bucket *storage.BucketHandle
}

// NewGCSBucket wraps a bucket of client.
func NewGCSBucket(client *storage.Client, bucket string) *GCSBucket {
	return &GCSBucket{bucket: client.Bucket(bucket)}
}

// NewWriter implements ObjectWriter.
func (b *GCSBucket) NewWriter(ctx context.Context, name string) io.WriteCloser {
	w := b.bucket.Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

// Archiver writes payloads as JSON objects named
// raw/{userID}/{itemID}/{jobID}/{name}.json.
type Archiver struct {
	objects ObjectWriter
	timeout time.Duration
}

// New creates an Archiver over objects.
func New(objects ObjectWriter) *Archiver {
	return &Archiver{objects: objects, timeout: 2 * time.Minute}
}

// ObjectName returns where a payload is archived.
func ObjectName(userID, itemID, jobID, name string) string {
	return path.Join("raw", userID, itemID, jobID, name+".json")
}

// Archive encodes payload and uploads it.
func (a *Archiver) Archive(ctx context.Context, userID, itemID, jobID, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("archive %s: encode payload: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	object := ObjectName(userID, itemID, jobID, name)
	w := a.objects.NewWriter(ctx, object)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("archive %s: write: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive %s: finalize upload: %w", object, err)
	}
	return nil
}
