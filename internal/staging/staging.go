// Package staging implements Blob Staging: an opaque byte store keyed
// by (job_id, extension), backed by the local filesystem under
// UPLOAD_DIR.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Open when the staged file does not exist.
var ErrNotFound = errors.New("staging: not found")

// Store writes and reads staged files under a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(jobID uuid.UUID, ext string) string {
	return filepath.Join(s.dir, jobID.String()+ext)
}

// Put writes stream to disk under key (job_id, ext). An existing file
// under the same key is never overwritten: Put returns an error instead.
func (s *Store) Put(ctx context.Context, jobID uuid.UUID, ext string, stream io.Reader) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("staging: mkdir: %w", err)
	}
	dst := s.path(jobID, ext)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("staging: create: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, stream); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("staging: write: %w", err)
	}
	return dst, nil
}

// Open yields the staged file's bytes for reading. The caller must Close it.
func (s *Store) Open(ctx context.Context, jobID uuid.UUID, ext string) (*os.File, error) {
	f, err := os.Open(s.path(jobID, ext))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("staging: open: %w", err)
	}
	return f, nil
}

// Path returns the on-disk location without opening it.
func (s *Store) Path(jobID uuid.UUID, ext string) string {
	return s.path(jobID, ext)
}

// Delete removes the staged file. Idempotent: a missing file is not an error.
func (s *Store) Delete(ctx context.Context, jobID uuid.UUID, ext string) error {
	if err := os.Remove(s.path(jobID, ext)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("staging: delete: %w", err)
	}
	return nil
}
