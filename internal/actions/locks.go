// Package actions dispatches container lifecycle actions: identity split,
// transition validation, per-entity serialization, the connector call and the
// follow-up targeted resync.
package actions

import "sync"

// keyedMutex serializes work per key. Locks are reference-counted so the map
// stays bounded by the number of entities with in-flight actions, not by
// every entity ever acted on.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*entityLock)}
}

// lock blocks until the key is exclusively held and returns the lock handle
// to pass back to unlock.
func (k *keyedMutex) lock(key string) *entityLock {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &entityLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return l
}

func (k *keyedMutex) unlock(key string, l *entityLock) {
	l.mu.Unlock()

	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// size reports how many keys currently hold or await a lock.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
