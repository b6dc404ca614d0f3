// Package state is the single fetch-or-create path used by every engine
// component: reads are served from the cache when possible, fall back to the
// store, and degrade to a default value when the store misbehaves.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/storage"
	"github.com/rs/zerolog"
)

// Repo reads and writes one entity kind. T must be a JSON-serialisable value type.
type Repo[T any] struct {
	kind       string
	store      storage.Store
	cache      *cache.Cache
	log        zerolog.Logger
	newDefault func(key string) T
}

// NewRepo builds a repo for kind. newDefault constructs the value returned
// for missing or unreadable records.
func NewRepo[T any](kind string, s storage.Store, c *cache.Cache, log zerolog.Logger, newDefault func(key string) T) *Repo[T] {
	if c == nil {
		c = cache.New()
	}
	return &Repo[T]{
		kind:       kind,
		store:      s,
		cache:      c,
		log:        log.With().Str("kind", kind).Logger(),
		newDefault: newDefault,
	}
}

// Kind returns the entity kind this repo serves.
func (r *Repo[T]) Kind() string { return r.kind }

// Lookup returns the stored value and whether it exists. Store errors other
// than not-found are returned to the caller.
func (r *Repo[T]) Lookup(ctx context.Context, key string) (T, bool, error) {
	if v, ok := r.cache.Get(r.kind, key); ok {
		return v.(T), true, nil
	}
	var zero T
	raw, err := r.store.Get(ctx, r.kind, key)
	if errors.Is(err, storage.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("read %s/%s: %w", r.kind, key, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("decode %s/%s: %w", r.kind, key, err)
	}
	r.cache.Set(r.kind, key, v)
	return v, true, nil
}

// GetOrInit returns the stored value or a fresh default. Read failures are
// logged and answered with the default; they never reach the caller.
func (r *Repo[T]) GetOrInit(ctx context.Context, key string) T {
	v, ok, err := r.Lookup(ctx, key)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("read failed, using default state")
		return r.newDefault(key)
	}
	if !ok {
		return r.newDefault(key)
	}
	return v
}

// Save updates the cache and then writes through to the store. A failed
// write is returned but the cache keeps the new value.
func (r *Repo[T]) Save(ctx context.Context, key string, v T) error {
	r.cache.Set(r.kind, key, v)
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", r.kind, key, err)
	}
	if err := r.store.Put(ctx, r.kind, key, raw); err != nil {
		r.log.Error().Err(err).Str("key", key).Msg("write failed, cache now ahead of store")
		return fmt.Errorf("write %s/%s: %w", r.kind, key, err)
	}
	return nil
}

// Delete removes the record from store and cache.
func (r *Repo[T]) Delete(ctx context.Context, key string) error {
	r.cache.Invalidate(r.kind, key)
	return r.store.Delete(ctx, r.kind, key)
}

// Keyed pairs a value with its record key.
type Keyed[T any] struct {
	Key   string
	Value T
}

// List returns all records whose key starts with prefix, ordered by key.
// Cached values win over stored ones, and cached records the store has never
// accepted are included, so a failed write is still visible to readers.
func (r *Repo[T]) List(ctx context.Context, prefix string) ([]Keyed[T], error) {
	entries, err := r.store.List(ctx, r.kind, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", r.kind, prefix, err)
	}
	cached := r.cache.Entries(r.kind, prefix)
	out := make([]Keyed[T], 0, len(entries))
	for _, e := range entries {
		if v, ok := cached[e.Key]; ok {
			out = append(out, Keyed[T]{Key: e.Key, Value: v.(T)})
			delete(cached, e.Key)
			continue
		}
		var v T
		if err := json.Unmarshal(e.Value, &v); err != nil {
			r.log.Warn().Err(err).Str("key", e.Key).Msg("skipping undecodable record")
			continue
		}
		r.cache.Set(r.kind, e.Key, v)
		out = append(out, Keyed[T]{Key: e.Key, Value: v})
	}
	if len(cached) == 0 {
		return out, nil
	}
	for k, v := range cached {
		out = append(out, Keyed[T]{Key: k, Value: v.(T)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
