package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ObjectWriter uploads generated files such as report exports.
type ObjectWriter struct {
	client *gcs.Client
}

// NewObjectWriter constructs an ObjectWriter backed by the provided Cloud Storage client.
func NewObjectWriter(client *gcs.Client) (*ObjectWriter, error) {
	if client == nil {
		return nil, errors.New("storage writer: client is required")
	}
	return &ObjectWriter{client: client}, nil
}

// WriteObject replaces bucket/object with data.
func (w *ObjectWriter) WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if w == nil || w.client == nil {
		return errors.New("storage writer: client is not initialised")
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return errors.New("storage writer: bucket and object must be provided")
	}

	ow := w.client.Bucket(bucket).Object(object).NewWriter(ctx)
	ow.ContentType = contentType
	if _, err := ow.Write(data); err != nil {
		_ = ow.Close()
		return fmt.Errorf("storage writer: write %s: %w", object, err)
	}
	if err := ow.Close(); err != nil {
		return fmt.Errorf("storage writer: close %s: %w", object, err)
	}
	return nil
}
