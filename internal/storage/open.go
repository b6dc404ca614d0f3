package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type OpenOptions struct {
	Backend     string
	Path        string // file backend
	SQLitePath  string
	RedisAddr   string
	RedisPrefix string
	Autosave    time.Duration
	Log         zerolog.Logger
}

// Open returns the configured backend.
func Open(ctx context.Context, o OpenOptions) (Store, error) {
	switch o.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		if err := ensureDir(o.Path); err != nil {
			return nil, err
		}
		return NewFileStore(o.Path, o.Autosave, o.Log)
	case BackendSQLite:
		if err := ensureDir(o.SQLitePath); err != nil {
			return nil, err
		}
		return OpenSQLite(o.SQLitePath)
	case BackendRedis:
		return DialRedis(ctx, o.RedisAddr, o.RedisPrefix)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", o.Backend)
	}
}

func ensureDir(path string) error {
	if path == "" {
		return fmt.Errorf("storage: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}
