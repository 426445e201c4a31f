/**
 * @description
 * Package lock provides per-key mutual exclusion for balance mutations. Each account
 * gets its own lock so that unrelated accounts never contend with each other.
 *
 * Two implementations satisfy Locker:
 * - KeyedMutex: an in-process registry of mutexes, used by the in-memory store and as
 *   the engine default.
 * - RedisLocker: a redsync (RedLock) mutex per key, used when several service instances
 *   share the same database.
 */

package lock

import (
	"context"
	"sync"
)

// Locker runs fn while holding the lock identified by key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex is a registry of mutexes keyed by string. Entries are reference counted
// and dropped once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

// NewKeyedMutex returns an empty registry.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock blocks until the lock for key is held and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*keyedEntry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// WithLock implements Locker.
func (k *KeyedMutex) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := k.Lock(key)
	defer unlock()
	return fn(ctx)
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
