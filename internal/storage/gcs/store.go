package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"cloudpdf/internal/storage"
)

// Store keeps objects in a Google Cloud Storage bucket.
type Store struct {
	client *gcstorage.Client
	bucket *gcstorage.BucketHandle
}

func New(ctx context.Context, bucketName string) (*Store, error) {
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client failed: %w", err)
	}
	return &Store{client: client, bucket: client.Bucket(bucketName)}, nil
}

// Save only creates new objects; a precondition failure maps to ErrExists.
func (s *Store) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return 0, err
	}
	writer := s.bucket.Object(clean).If(gcstorage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "application/pdf"

	written, err := io.Copy(writer, r)
	if err != nil {
		_ = writer.Close()
		return 0, mapWriteErr(err)
	}
	if err := writer.Close(); err != nil {
		return 0, mapWriteErr(err)
	}
	return written, nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.bucket.Object(clean).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("open gcs object failed: %w", err)
	}
	return reader, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return err
	}
	if err := s.bucket.Object(clean).Delete(ctx); err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object failed: %w", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return false, err
	}
	if _, err := s.bucket.Object(clean).Attrs(ctx); err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat gcs object failed: %w", err)
	}
	return true, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func mapWriteErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return storage.ErrExists
	}
	return fmt.Errorf("write gcs object failed: %w", err)
}
