package annotations

import "sync"

// lockSet hands out one mutex per document. Entries are reference counted
// and dropped when the last holder releases, so the map does not grow with
// every document ever touched.
type lockSet struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	sync.Mutex
	refs int
}

func newLockSet() *lockSet {
	return &lockSet{locks: make(map[string]*docLock)}
}

// lock blocks until doc's mutex is held and returns its release function.
func (l *lockSet) lock(doc string) func() {
	l.mu.Lock()
	dl, ok := l.locks[doc]
	if !ok {
		dl = &docLock{}
		l.locks[doc] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.Lock()

	return func() {
		dl.Unlock()

		l.mu.Lock()
		dl.refs--
		if dl.refs == 0 {
			delete(l.locks, doc)
		}
		l.mu.Unlock()
	}
}

// size reports the number of live entries.
func (l *lockSet) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
