package fsblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zanzhit/securecam/internal/domain/errs"
)

// Storage keeps blobs as files under a root directory.
type Storage struct {
	root string
}

func New(root string) (*Storage, error) {
	const op = "storage.blob.fs.New"

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{root: root}, nil
}

func (s *Storage) Write(_ context.Context, path string, r io.Reader, _ int64) error {
	const op = "storage.blob.fs.Write"

	full, err := s.resolve(path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Open(_ context.Context, path string) (io.ReadCloser, error) {
	const op = "storage.blob.fs.Open"

	full, err := s.resolve(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: blob %w", op, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return f, nil
}

// Delete is idempotent: a missing blob is not an error.
func (s *Storage) Delete(_ context.Context, path string) error {
	const op = "storage.blob.fs.Delete"

	full, err := s.resolve(path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// resolve maps a slash separated key to a file below root.
func (s *Storage) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if path == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: bad blob path %q", errs.ErrInvalidArgument, path)
	}

	return filepath.Join(s.root, clean), nil
}
