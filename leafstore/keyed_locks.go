package leafstore

import (
	"context"
	"sync"
)

// KeyedLocks hands out one lock per key, such as a deposit txid. Locks are
// created on first use and dropped once the last holder or waiter releases.
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*keyedLock)}
}

// Acquire blocks until the lock for key is held or ctx is done. The returned
// release func must be called exactly once.
func (k *KeyedLocks) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.ch
			k.unref(key, lock)
		})
	}, nil
}

func (k *KeyedLocks) unref(key string, lock *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(k.locks, key)
	}
}

// Len is the number of keys with a holder or waiter.
func (k *KeyedLocks) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
