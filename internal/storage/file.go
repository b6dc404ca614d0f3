package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/keshon/heartline/datastore"
	"github.com/rs/zerolog"
)

// FileStore persists records in a single JSON file through datastore.
type FileStore struct {
	ds *datastore.DataStore
}

// NewFileStore opens (or creates) the JSON file at path.
func NewFileStore(path string, autosave time.Duration, log zerolog.Logger) (*FileStore, error) {
	cfg := datastore.DefaultConfig(path)
	if autosave > 0 {
		cfg.AutoSaveInterval = autosave
	}
	cfg.Logger = log.With().Str("component", "datastore").Logger()
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &FileStore{ds: ds}, nil
}

func fileKey(kind, key string) string {
	return kind + sep + key
}

func (f *FileStore) Get(_ context.Context, kind, key string) ([]byte, error) {
	v, ok := f.ds.Get(fileKey(kind, key))
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (f *FileStore) Put(_ context.Context, kind, key string, value []byte) error {
	if err := validate(kind, key); err != nil {
		return err
	}
	return f.ds.Put(fileKey(kind, key), json.RawMessage(value))
}

func (f *FileStore) Delete(_ context.Context, kind, key string) error {
	f.ds.Delete(fileKey(kind, key))
	return nil
}

func (f *FileStore) List(_ context.Context, kind, prefix string) ([]Entry, error) {
	base := kind + sep
	keys := f.ds.Keys(base + prefix)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		v, ok := f.ds.Get(k)
		if !ok {
			continue
		}
		out = append(out, Entry{Key: strings.TrimPrefix(k, base), Value: v})
	}
	return out, nil
}

func (f *FileStore) Close() error {
	return f.ds.Close()
}
