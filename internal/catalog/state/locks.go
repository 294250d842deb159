package state

import "sync"

// KeyLocks hands out one mutex per key, entries are dropped once nobody
// holds or waits for them.
type KeyLocks struct {
	mutex sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: map[string]*keyLock{}}
}

// Lock blocks until key is free and returns the function releasing it.
func (l *KeyLocks) Lock(key string) (unlock func()) {
	l.mutex.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &keyLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mutex.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()

		l.mutex.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mutex.Unlock()
	}
}

// Held returns how many keys are currently locked or waited on.
func (l *KeyLocks) Held() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.locks)
}
