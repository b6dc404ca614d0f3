package state

import (
	"context"
	"errors"
	"testing"

	"github.com/keshon/heartline/internal/cache"
	"github.com/keshon/heartline/internal/storage"
	"github.com/keshon/heartline/internal/storage/storagetest"
	"github.com/rs/zerolog"
)

type counter struct {
	N     int    `json:"n"`
	Owner string `json:"owner"`
}

func newRepo(s storage.Store) *Repo[counter] {
	return NewRepo("counter", s, cache.New(), zerolog.Nop(), func(key string) counter {
		return counter{Owner: key}
	})
}

func TestGetOrInitReturnsDefault(t *testing.T) {
	r := newRepo(storage.NewMemoryStore())
	v := r.GetOrInit(context.Background(), "u1")
	if v.Owner != "u1" || v.N != 0 {
		t.Errorf("expected default for u1, got %+v", v)
	}
}

func TestSaveThenRead(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()
	r := newRepo(s)

	if err := r.Save(ctx, "u1", counter{N: 3, Owner: "u1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// fresh repo has an empty cache, forcing a store read
	r2 := newRepo(s)
	v, ok, err := r2.Lookup(ctx, "u1")
	if err != nil || !ok || v.N != 3 {
		t.Errorf("expected N=3, got %+v ok=%v err=%v", v, ok, err)
	}
}

func TestReadFailureDegradesToDefault(t *testing.T) {
	ctx := context.Background()
	f := storagetest.NewFaulty(nil)
	r := newRepo(f)
	_ = f.Store.Put(ctx, "counter", "u1", []byte(`{"n":9}`))

	f.FailGet.Store(true)
	v := r.GetOrInit(ctx, "u1")
	if v.N != 0 {
		t.Errorf("expected default on read failure, got %+v", v)
	}

	if _, _, err := r.Lookup(ctx, "u1"); !errors.Is(err, storagetest.ErrInjected) {
		t.Errorf("expected Lookup to surface the store error, got %v", err)
	}
}

func TestWriteFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	f := storagetest.NewFaulty(nil)
	r := newRepo(f)

	f.FailPut.Store(true)
	if err := r.Save(ctx, "u1", counter{N: 5}); err == nil {
		t.Fatal("expected write error")
	}
	if v := r.GetOrInit(ctx, "u1"); v.N != 5 {
		t.Errorf("expected cache to keep N=5 after failed write, got %+v", v)
	}
	if _, err := f.Store.Get(ctx, "counter", "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected store to be untouched, got %v", err)
	}
}

func TestListOverlaysCache(t *testing.T) {
	ctx := context.Background()
	f := storagetest.NewFaulty(nil)
	r := newRepo(f)

	if err := r.Save(ctx, storage.Key("u1", "a"), counter{N: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f.FailPut.Store(true)
	_ = r.Save(ctx, storage.Key("u1", "a"), counter{N: 2})

	items, err := r.List(ctx, storage.UserPrefix("u1"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Value.N != 2 {
		t.Errorf("expected cached N=2, got %+v", items)
	}
}

func TestListIncludesUnpersistedNewRecord(t *testing.T) {
	ctx := context.Background()
	f := storagetest.NewFaulty(nil)
	r := newRepo(f)

	if err := r.Save(ctx, storage.Key("u1", "b"), counter{N: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f.FailPut.Store(true)
	if err := r.Save(ctx, storage.Key("u1", "a"), counter{N: 7}); err == nil {
		t.Fatal("expected write error")
	}
	_ = r.Save(ctx, storage.Key("u2", "a"), counter{N: 9})

	items, err := r.List(ctx, storage.UserPrefix("u1"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 records for u1, got %+v", items)
	}
	if items[0].Key != storage.Key("u1", "a") || items[0].Value.N != 7 {
		t.Errorf("expected unpersisted record first in key order, got %+v", items[0])
	}
}
