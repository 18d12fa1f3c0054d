package services

import "sync"

// KeyedMutex hands out one mutex per key. Membership mutations and
// message appends on the same group (or direct pair) share a key, so a
// membership check and the append it authorizes form a single critical
// section, while unrelated conversations never contend.
//
// Entries are reference counted and reclaimed when the last holder
// unlocks, so the map tracks the conversations currently in flight, not
// every conversation the process ever touched.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()
	lock.mu.Lock()
}

func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	lock := k.locks[key]
	lock.refs--
	if lock.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
	lock.mu.Unlock()
}
