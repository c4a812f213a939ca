package services

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// StorageService keeps accepted uploads in a Google Cloud Storage bucket.
// The pipeline itself never touches it; handlers stage uploads locally for
// the extractor and persist them here only after the decision is made.
type StorageService struct {
	client     *storage.Client
	bucketName string
}

func NewStorageService(client *storage.Client, bucketName string) *StorageService {
	return &StorageService{
		client:     client,
		bucketName: bucketName,
	}
}

// SaveFile writes data to the bucket under objectPath.
func (s *StorageService) SaveFile(ctx context.Context, objectPath string, data []byte, contentType string) error {
	obj := s.client.Bucket(s.bucketName).Object(objectPath)

	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write object %s: %w", objectPath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", objectPath, err)
	}

	return nil
}

// FetchFile retrieves a stored photo by its object path.
// Returns the file contents as bytes or an error if the file cannot be retrieved.
func (s *StorageService) FetchFile(ctx context.Context, objectPath string) ([]byte, error) {
	bucket := s.client.Bucket(s.bucketName)
	obj := bucket.Object(objectPath)

	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}
