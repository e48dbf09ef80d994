package fs

import "sync"

// PathLocker hands out one mutex per key. Entries are dropped once no
// goroutine holds or waits on them, so the map stays proportional to the
// number of paths in flight.
type PathLocker struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// NewPathLocker returns an empty PathLocker.
func NewPathLocker() *PathLocker {
	return &PathLocker{locks: make(map[string]*pathLock)}
}

// Lock blocks until key is free and returns the function that releases it.
func (l *PathLocker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*pathLock)
	}
	pl, ok := l.locks[key]
	if !ok {
		pl = &pathLock{}
		l.locks[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (l *PathLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
