package gateway

import (
	"context"
	"sync"
)

// sessionLocks serializes writers per session id. Entries are reference
// counted and removed once nobody holds or waits on them, so the map only
// grows with the number of sessions being written concurrently.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// acquire blocks until the session's lock is held or ctx is done. The
// returned release func must be called exactly once.
func (l *sessionLocks) acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[sessionID]
	if !ok {
		lk = &sessionLock{sem: make(chan struct{}, 1)}
		l.locks[sessionID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.sem <- struct{}{}:
		return func() {
			<-lk.sem
			l.put(sessionID, lk)
		}, nil
	case <-ctx.Done():
		l.put(sessionID, lk)
		return nil, ctx.Err()
	}
}

func (l *sessionLocks) put(sessionID string, lk *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// size returns the number of tracked sessions.
func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
