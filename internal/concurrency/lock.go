package concurrency

import "sync"

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes work per key, such as a plan id. Entries are dropped
// once no goroutine holds or waits on them.
type KeyedMutex struct {
	locks map[string]*keyedEntry
	mu    sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyedEntry),
	}
}

func (m *KeyedMutex) Lock(key string) {
	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &keyedEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()
	entry.mu.Lock()
}

// TryLock acquires the key only if nobody else holds it.
func (m *KeyedMutex) TryLock(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.locks[key]
	if ok {
		return false
	}
	entry = &keyedEntry{refs: 1}
	entry.mu.Lock()
	m.locks[key] = entry
	return true
}

func (m *KeyedMutex) Unlock(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.locks[key]
	if !ok {
		return
	}
	entry.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
