package locks

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned once the registry has been shut down.
var ErrClosed = errors.New("lock registry closed")

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Registry hands out one mutual-exclusion lock per key. Entries are created
// on first use and released when the last holder or waiter leaves, so the
// registry only holds keys that are in use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// NewRegistry creates an empty registry. Call Close on shutdown.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) acquireRef(key string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	e, ok := r.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		r.entries[key] = e
	}
	e.refs++
	return e, nil
}

func (r *Registry) dropRef(key string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(r.entries, key)
	}
}

// Lock blocks until key is held or ctx is done.
func (r *Registry) Lock(ctx context.Context, key string) error {
	e, err := r.acquireRef(key)
	if err != nil {
		return err
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		r.dropRef(key, e)
		return err
	}
	return nil
}

// TryLock takes key only if it is free.
func (r *Registry) TryLock(key string) bool {
	e, err := r.acquireRef(key)
	if err != nil {
		return false
	}
	if !e.sem.TryAcquire(1) {
		r.dropRef(key, e)
		return false
	}
	return true
}

// Unlock releases key. Unlocking a key that is not held panics.
func (r *Registry) Unlock(key string) {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		panic("locks: unlock of unlocked key " + key)
	}
	e.sem.Release(1)
	r.dropRef(key, e)
}

// Held returns the number of keys currently locked or awaited.
func (r *Registry) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close rejects further Lock and TryLock calls. Holders may still Unlock.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
