package engine

import "sync"

// userLocks serializes work per user inside one process. Entries are
// reference counted and dropped once nobody holds or waits on them, so the
// map stays as small as the set of users with in-flight events.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// Lock blocks until the caller owns userID and returns the unlock function.
func (l *userLocks) Lock(userID string) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()

	return func() {
		ul.mu.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
