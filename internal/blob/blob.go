// Package blob archives uploaded files. The relational store keeps only a
// URL; the bytes themselves live behind this boundary so the storage
// backend can change without touching the ingestion path.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store persists raw upload bytes and returns a stable URL for them.
type Store interface {
	// Put writes data under a name derived from fileName and returns the
	// URL where it can be fetched later.
	Put(ctx context.Context, fileName string, data []byte) (string, error)

	// Remove deletes the blob at a URL previously returned by Put. Removing
	// a blob that is already gone is not an error.
	Remove(ctx context.Context, blobURL string) error
}

// FileStore keeps blobs on the local filesystem under a single directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store rooted
// there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("blob: directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve blob directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &FileStore{dir: abs}, nil
}

// Put writes data to a uniquely named file and returns its file:// URL.
// The original file name is kept as a suffix for operator legibility; the
// uuid prefix guarantees uniqueness and strips any path the client sent.
func (s *FileStore) Put(_ context.Context, fileName string, data []byte) (string, error) {
	name := uuid.NewString() + "-" + sanitize(fileName)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: path}).String(), nil
}

// Remove deletes the blob behind a file:// URL. URLs outside the store's
// directory are rejected.
func (s *FileStore) Remove(_ context.Context, blobURL string) error {
	u, err := url.Parse(blobURL)
	if err != nil {
		return fmt.Errorf("parse blob url: %w", err)
	}
	if u.Scheme != "file" {
		return fmt.Errorf("blob: unexpected scheme %q", u.Scheme)
	}
	path := filepath.Clean(u.Path)
	if !strings.HasPrefix(path, s.dir+string(filepath.Separator)) {
		return fmt.Errorf("blob: path %q outside store", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// sanitize reduces a client-supplied file name to a safe basename.
func sanitize(name string) string {
	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "upload"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
}
