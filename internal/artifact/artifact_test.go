package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockUploader is a mock implementation of Uploader for testing.
type MockUploader struct {
	UploadFileFunc func(ctx context.Context, bucketName, objectName, filePath string) error
}

func (m *MockUploader) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	if m.UploadFileFunc != nil {
		return m.UploadFileFunc(ctx, bucketName, objectName, filePath)
	}
	return nil
}

var traceName = regexp.MustCompile(`^2024-06-15-tangerine-[0-9a-f-]{36}\.zip$`)

func TestTracePath(t *testing.T) {
	at := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

	a := TracePath("traces", at, "tangerine")
	b := TracePath("traces", at, "tangerine")

	assert.Equal(t, "traces", filepath.Dir(a))
	assert.Regexp(t, traceName, filepath.Base(a))
	assert.NotEqual(t, a, b)
}

func TestLocalStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "traces")
	store := NewLocalStore(dir)

	path, err := store.Prepare(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), "tangerine")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Regexp(t, traceName, filepath.Base(path))

	assert.Error(t, store.Persist(context.Background(), path))

	require.NoError(t, os.WriteFile(path, []byte("zip"), 0o600))
	assert.NoError(t, store.Persist(context.Background(), path))
}

func TestGCSStore_Persist(t *testing.T) {
	dir := t.TempDir()
	local := NewLocalStore(dir)
	path, err := local.Prepare(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), "tangerine")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("zip"), 0o600))

	t.Run("uploads under traces prefix", func(t *testing.T) {
		var gotBucket, gotObject string
		store := NewGCSStore(local, &MockUploader{
			UploadFileFunc: func(ctx context.Context, bucketName, objectName, filePath string) error {
				gotBucket, gotObject = bucketName, objectName
				assert.Equal(t, path, filePath)
				return nil
			},
		}, "bank-sync-traces")

		require.NoError(t, store.Persist(context.Background(), path))
		assert.Equal(t, "bank-sync-traces", gotBucket)
		assert.Equal(t, "traces/"+filepath.Base(path), gotObject)
	})

	t.Run("upload failure keeps local copy", func(t *testing.T) {
		store := NewGCSStore(local, &MockUploader{
			UploadFileFunc: func(ctx context.Context, bucketName, objectName, filePath string) error {
				return errors.New("permission denied")
			},
		}, "bank-sync-traces")

		err := store.Persist(context.Background(), path)
		assert.ErrorContains(t, err, "permission denied")
		assert.FileExists(t, path)
	})
}
