package gcsuploader

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// ImageStore keeps uploaded receipt images.
type ImageStore interface {
	// UploadImage stores data under the batch and returns its gs:// URI.
	UploadImage(ctx context.Context, batchID, fileName, contentType string, data []byte) (string, error)

	// FetchFromGCS downloads the bytes behind a gs:// URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// GCSImageStore is the Cloud Storage ImageStore. It holds one shared client.
type GCSImageStore struct {
	client *storage.Client
	bucket string
}

var _ ImageStore = (*GCSImageStore)(nil)

// NewGCSImageStore creates a store writing to bucket. It assumes Application
// Default Credentials are configured.
func NewGCSImageStore(ctx context.Context, bucket string) (*GCSImageStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSImageStore: create storage client: %w", err)
	}
	return &GCSImageStore{client: client, bucket: bucket}, nil
}

// Close closes the storage client.
func (s *GCSImageStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *GCSImageStore) UploadImage(ctx context.Context, batchID, fileName, contentType string, data []byte) (string, error) {
	object := ObjectName(batchID, fileName)
	if err := UploadBytesWithClient(ctx, s.client, s.bucket, object, contentType, data); err != nil {
		return "", err
	}
	return "gs://" + s.bucket + "/" + object, nil
}

func (s *GCSImageStore) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return FetchFromGCSWithClient(ctx, s.client, gcsURI)
}
