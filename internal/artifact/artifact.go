package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store decides where a failed run's trace goes and persists it once the
// session has written it.
type Store interface {
	// Prepare returns a fresh path for the trace of source's run started at.
	Prepare(at time.Time, source string) (string, error)
	// Persist is called after the trace file exists at path.
	Persist(ctx context.Context, path string) error
}

// TracePath names a trace file as <dir>/<yyyy-mm-dd>-<source>-<uuid>.zip.
// The random suffix keeps repeated or concurrent failures from colliding.
func TracePath(dir string, at time.Time, source string) string {
	name := fmt.Sprintf("%s-%s-%s.zip", at.Format("2006-01-02"), source, uuid.NewString())
	return filepath.Join(dir, name)
}

// LocalStore keeps traces in a directory on disk.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir}
}

func (s *LocalStore) Prepare(at time.Time, source string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("LocalStore.Prepare: create %q: %w", s.Dir, err)
	}
	return TracePath(s.Dir, at, source), nil
}

func (s *LocalStore) Persist(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("LocalStore.Persist: %w", err)
	}
	return nil
}
