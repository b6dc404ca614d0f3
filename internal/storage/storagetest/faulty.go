// Package storagetest provides store wrappers for failure-path tests.
package storagetest

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/keshon/heartline/internal/storage"
)

// ErrInjected is returned by a Faulty store when a failure is switched on.
var ErrInjected = errors.New("storagetest: injected failure")

// Faulty wraps a Store and fails reads, writes or lists on demand.
type Faulty struct {
	storage.Store
	FailGet  atomic.Bool
	FailPut  atomic.Bool
	FailList atomic.Bool
	Puts     atomic.Int64
}

func NewFaulty(inner storage.Store) *Faulty {
	if inner == nil {
		inner = storage.NewMemoryStore()
	}
	return &Faulty{Store: inner}
}

func (f *Faulty) Get(ctx context.Context, kind, key string) ([]byte, error) {
	if f.FailGet.Load() {
		return nil, ErrInjected
	}
	return f.Store.Get(ctx, kind, key)
}

func (f *Faulty) Put(ctx context.Context, kind, key string, value []byte) error {
	f.Puts.Add(1)
	if f.FailPut.Load() {
		return ErrInjected
	}
	return f.Store.Put(ctx, kind, key, value)
}

func (f *Faulty) List(ctx context.Context, kind, prefix string) ([]storage.Entry, error) {
	if f.FailList.Load() {
		return nil, ErrInjected
	}
	return f.Store.List(ctx, kind, prefix)
}
