package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendS3     Backend = "s3"
	BackendMemory Backend = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend    Backend
	Dir        string
	SQLitePath string
	S3Bucket   string
	S3Prefix   string
	S3Region   string
}

// Open returns the Store described by cfg. An empty backend means file.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("file store requires a directory")
		}
		return NewFileStore(cfg.Dir)
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			if cfg.Dir == "" {
				return nil, fmt.Errorf("sqlite store requires a path or directory")
			}
			path = filepath.Join(cfg.Dir, "ensemble.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		return OpenSQLite(ctx, path)
	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 store requires a bucket")
		}
		return NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
