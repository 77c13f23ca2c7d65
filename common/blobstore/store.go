// Package blobstore stores uploaded recordings and metadata documents,
// addressed by flat generated names.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fieldsense/audioingest/common/config"
	"github.com/fieldsense/audioingest/common/logger"
)

// Store is content storage addressed by filename.
//
// Put replaces any existing blob atomically: readers see either the old
// content or the new content, never a partial write. Create writes the same
// way but fails with a conflict error when name is already taken.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader) (int64, error)
	Create(ctx context.Context, name string, r io.Reader) (int64, error)
	Exists(ctx context.Context, name string) (bool, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Backend() string
}

// New builds the store selected by cfg.Blob.Backend.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (Store, error) {
	switch cfg.Blob.Backend {
	case "fs":
		store, err := NewFSStore(cfg.Blob.Dir)
		if err != nil {
			return nil, err
		}
		log.Info("filesystem blob store configured", "dir", cfg.Blob.Dir)
		return store, nil
	case "s3":
		store, err := NewS3Store(ctx, S3Options{
			Bucket:    cfg.Blob.Bucket,
			Region:    cfg.Blob.Region,
			Endpoint:  cfg.Blob.Endpoint,
			Prefix:    cfg.Blob.Prefix,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.Blob.Backend)
	}
}

// ReadAll reads a whole blob. Intended for small documents.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	rc, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	return data, nil
}

// PutBytes stores data under name.
func PutBytes(ctx context.Context, s Store, name string, data []byte) error {
	_, err := s.Put(ctx, name, bytes.NewReader(data))
	return err
}
