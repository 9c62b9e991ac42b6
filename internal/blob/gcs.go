// Package blob fetches uploaded document bytes from the object store.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// GCSStore reads raw uploads from Google Cloud Storage by gs:// URL.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates an object store client using ambient credentials.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// Get downloads the object at a gs://bucket/object URL.
func (s *GCSStore) Get(ctx context.Context, url string) ([]byte, error) {
	bucket, object, err := parseGSURL(url)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %s: %w", url, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("open object %s: %w", url, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", url, err)
	}
	return data, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func parseGSURL(url string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(url, "gs://")
	if !ok {
		return "", "", fmt.Errorf("unsupported object URL %q (want gs://bucket/object)", url)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed object URL %q", url)
	}
	return bucket, object, nil
}
