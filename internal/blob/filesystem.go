// Package blob stores managed-file content outside the record repository,
// keyed by SHA-256 checksum. The repository only ever tracks small pointer
// files, so its history stays bounded no matter how large the binaries
// grow.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"pdm-go/internal/pdm"
)

// FileSystemStore keeps blobs as files named by their checksum under a
// single content directory.
type FileSystemStore struct {
	name       string
	root       string
	contentDir string
}

var _ pdm.BlobStore = (*FileSystemStore)(nil)

// NewFileSystemStore creates a filesystem blob store rooted at the given
// path.
func NewFileSystemStore(name, root string) (*FileSystemStore, error) {
	contentDir := filepath.Join(root, "content")
	if err := os.MkdirAll(contentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &FileSystemStore{name: name, root: root, contentDir: contentDir}, nil
}

// Put stores content under its checksum. Idempotent: if the blob already
// exists the reader is drained and verified but nothing is rewritten.
func (s *FileSystemStore) Put(_ context.Context, checksum string, r io.Reader, size int64) error {
	destPath := filepath.Join(s.contentDir, checksum)

	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return s.writeFile(destPath, r, size)
}

// Get retrieves content by checksum and writes it to w.
func (s *FileSystemStore) Get(_ context.Context, checksum string, w io.Writer) error {
	f, err := os.Open(filepath.Join(s.contentDir, checksum))
	if err != nil {
		if os.IsNotExist(err) {
			return &pdm.NotFoundError{What: "content", Name: checksum}
		}
		return fmt.Errorf("failed to open content: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	return nil
}

// Exists reports whether content for checksum is stored.
func (s *FileSystemStore) Exists(_ context.Context, checksum string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.contentDir, checksum))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking content: %w", err)
}

// ValidateSetup verifies that the store directories are accessible.
func (s *FileSystemStore) ValidateSetup(_ context.Context) error {
	for _, dir := range []string{s.root, s.contentDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("blob store not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("blob store path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to destPath using atomic write (temp file +
// rename).
func (s *FileSystemStore) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
