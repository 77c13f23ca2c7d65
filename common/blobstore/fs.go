package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/models"
)

// FSStore keeps blobs as files in a single directory.
type FSStore struct {
	dir string
}

// NewFSStore creates the directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.WrapStorage("create upload folder", err)
	}
	return &FSStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *FSStore) Dir() string {
	return s.dir
}

// Backend implements Store.
func (s *FSStore) Backend() string {
	return "fs"
}

// Put writes r to a temp file in the same directory, syncs it, then renames
// it over name.
func (s *FSStore) Put(ctx context.Context, name string, r io.Reader) (int64, error) {
	const op = "blob put"

	tmpPath, n, err := s.spool(ctx, op, name, r)
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpPath)
		return 0, errs.WrapStorage(op, fmt.Errorf("rename %s: %w", name, err))
	}
	return n, nil
}

// Create is Put without replacement. The finished temp file is hard-linked
// to name, which fails atomically when name already exists.
func (s *FSStore) Create(ctx context.Context, name string, r io.Reader) (int64, error) {
	const op = "blob create"

	tmpPath, n, err := s.spool(ctx, op, name, r)
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmpPath)

	err = os.Link(tmpPath, filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrExist) {
		return 0, errs.Conflictf(op, "blob %q already exists", name)
	}
	if err != nil {
		return 0, errs.WrapStorage(op, fmt.Errorf("link %s: %w", name, err))
	}
	return n, nil
}

// spool writes r to a synced temp file in the store directory and returns its
// path. The caller owns the file on success.
func (s *FSStore) spool(ctx context.Context, op, name string, r io.Reader) (string, int64, error) {
	if err := models.ValidateBlobName(name); err != nil {
		return "", 0, err
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", 0, errs.WrapStorage(op, fmt.Errorf("create temp file: %w", err))
	}
	done := false
	defer func() {
		if !done {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return "", 0, errs.WrapStorage(op, fmt.Errorf("write %s: %w", name, err))
	}
	if err := tmp.Sync(); err != nil {
		return "", 0, errs.WrapStorage(op, fmt.Errorf("sync %s: %w", name, err))
	}
	if err := tmp.Close(); err != nil {
		return "", 0, errs.WrapStorage(op, fmt.Errorf("close %s: %w", name, err))
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", 0, errs.WrapStorage(op, fmt.Errorf("chmod %s: %w", name, err))
	}
	done = true

	return tmp.Name(), n, nil
}

// Exists reports whether a regular file named name is present.
func (s *FSStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := models.ValidateBlobName(name); err != nil {
		return false, err
	}

	info, err := os.Stat(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errs.WrapStorage("blob stat", err)
	}
	return info.Mode().IsRegular(), nil
}

// Open returns the blob contents. Missing blobs yield a not-found error.
func (s *FSStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := models.ValidateBlobName(name); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.NotFoundf("blob open", "blob %q not found", name)
	}
	if err != nil {
		return nil, errs.WrapStorage("blob open", err)
	}
	return f, nil
}
