package contextstore

import (
	"context"
	"sync"
)

// sessionLocks serializes turn processing per session. Each session gets a
// one-slot channel semaphore so acquisition can respect context cancellation.
type sessionLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{slots: make(map[string]chan struct{})}
}

func (l *sessionLocks) slot(sessionID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[sessionID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[sessionID] = slot
	}
	return slot
}

// acquire takes the session lock. With wait=false a held lock returns
// ErrSessionBusy immediately. The release function is idempotent.
func (l *sessionLocks) acquire(ctx context.Context, sessionID string, wait bool) (func(), error) {
	slot := l.slot(sessionID)

	if !wait {
		select {
		case slot <- struct{}{}:
		default:
			return nil, ErrSessionBusy
		}
	} else {
		select {
		case slot <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-slot })
	}
	return release, nil
}

// tryAcquire is a non-blocking acquire used by the eviction sweep.
func (l *sessionLocks) tryAcquire(sessionID string) (func(), bool) {
	release, err := l.acquire(context.Background(), sessionID, false)
	if err != nil {
		return nil, false
	}
	return release, true
}
