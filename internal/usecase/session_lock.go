package usecase

import "sync"

// SessionLocker serializes work per session id. Locks are created on first
// use and reclaimed when the last holder releases, so idle sessions cost
// nothing.
type SessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionLocker creates an empty locker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{locks: make(map[string]*sessionLock)}
}

// Lock acquires the lock for sessionID, blocking while another holder has
// it. The returned function releases the lock and must be called exactly
// once.
func (l *SessionLocker) Lock(sessionID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		l.locks[sessionID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, sessionID)
		}
		l.mu.Unlock()
	}
}
