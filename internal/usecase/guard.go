package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"NewsHarvester/internal/ports"
)

// LocalGuard allows one run per process. A refused acquire is dropped, never queued.
type LocalGuard struct {
	busy atomic.Bool
}

var _ ports.RunGuard = (*LocalGuard)(nil)

func (g *LocalGuard) TryAcquire(context.Context) (func(), bool, error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(func() { g.busy.Store(false) }) }, true, nil
}

// keyLock serialises work per key; unrelated keys never wait on each other.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: map[string]*keyEntry{}}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyLock) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
