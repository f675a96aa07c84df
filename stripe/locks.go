package stripe

import "sync"

// LockManager serializes the work done for a single user, so that a webhook
// delivery and a manual synchronization of the same user don't interleave,
// while different users are processed in parallel. A user lock lives while
// somebody holds it or waits for it.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	// holders and waiters, guarded by LockManager.mu
	refs int
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*userLock)}
}

// LockUser acquires the lock of the user and returns the function releasing
// it.
func (lm *LockManager) LockUser(userID string) func() {
	lm.mu.Lock()
	lock, ok := lm.locks[userID]
	if !ok {
		lock = &userLock{}
		lm.locks[userID] = lock
	}
	lock.refs++
	lm.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()
		lm.mu.Lock()
		defer lm.mu.Unlock()
		lock.refs--
		if lock.refs == 0 {
			delete(lm.locks, userID)
		}
	}
}

// Len returns the number of users with a held or awaited lock.
func (lm *LockManager) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks)
}
