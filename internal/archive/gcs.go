package archive

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/logging"
)

// GCS writes archive objects to a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a GCS archive and verifies bucket access so a
// misconfigured deployment fails at startup rather than mid-collection.
// Authentication uses Application Default Credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("close storage client after failed bucket check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	return &GCS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Save uploads the payload and returns its gs:// URI.
func (g *GCS) Save(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("object key is required")
	}
	object := key
	if g.prefix != "" {
		object = g.prefix + "/" + key
	}
	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			logging.L.Warn("close object writer after failed write", zap.Error(closeErr))
		}
		return "", fmt.Errorf("write object %s: %w", object, err)
	}
	// Close finalizes the upload; the object does not exist until it returns.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object writer %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, object), nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
