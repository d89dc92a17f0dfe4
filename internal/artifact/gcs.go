package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/bank-sync/internal/logger"
)

// Uploader copies a local file into a bucket.
type Uploader interface {
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error
}

// GCSUploader uploads with Application Default Credentials.
type GCSUploader struct{}

func NewGCSUploader() *GCSUploader {
	return &GCSUploader{}
}

func (u *GCSUploader) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/zip"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// GCSStore keeps traces locally and also uploads them under traces/ in a
// bucket. The local copy is authoritative; upload errors are returned for
// the caller to log.
type GCSStore struct {
	local    *LocalStore
	uploader Uploader
	bucket   string
}

func NewGCSStore(local *LocalStore, uploader Uploader, bucket string) *GCSStore {
	return &GCSStore{local: local, uploader: uploader, bucket: bucket}
}

func (s *GCSStore) Prepare(at time.Time, source string) (string, error) {
	return s.local.Prepare(at, source)
}

func (s *GCSStore) Persist(ctx context.Context, filePath string) error {
	if err := s.local.Persist(ctx, filePath); err != nil {
		return err
	}
	object := path.Join("traces", filepath.Base(filePath))
	if err := s.uploader.UploadFile(ctx, s.bucket, object, filePath); err != nil {
		return fmt.Errorf("GCSStore.Persist: upload gs://%s/%s: %w", s.bucket, object, err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("uri", "gs://"+s.bucket+"/"+object).Msg("trace uploaded")
	return nil
}
