// Package mutex provides a mutex keyed by an arbitrary comparable value.
package mutex

import "sync"

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes callers that share a key; distinct keys never block
// each other. Entries are dropped once no caller holds or waits for them.
type KeyedMutex[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*keyedEntry
}

func (km *KeyedMutex[K]) Lock(key K) {
	km.mu.Lock()
	if km.entries == nil {
		km.entries = map[K]*keyedEntry{}
	}
	e := km.entries[key]
	if e == nil {
		e = &keyedEntry{}
		km.entries[key] = e
	}
	e.refs++
	km.mu.Unlock()

	e.mu.Lock()
}

func (km *KeyedMutex[K]) Unlock(key K) {
	km.mu.Lock()
	e := km.entries[key]
	if e == nil {
		km.mu.Unlock()
		panic("mutex: unlock of unlocked key")
	}
	e.refs--
	if e.refs == 0 {
		delete(km.entries, key)
	}
	km.mu.Unlock()

	e.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (km *KeyedMutex[K]) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.entries)
}
