package service

import "sync"

// userLocks is the per-user generation lock table. The lock scope is always a
// single user id, so operations for different users never contend.
type userLocks struct {
	mu sync.Map // user id -> *sync.Mutex
}

// tryAcquire attempts to take the user's lock without blocking. It returns a
// release func on success and nil when another call holds the lock. Callers
// must defer the release so every exit path unlocks.
func (l *userLocks) tryAcquire(userID string) func() {
	entry, _ := l.mu.LoadOrStore(userID, &sync.Mutex{})
	lock := entry.(*sync.Mutex)
	if !lock.TryLock() {
		return nil
	}
	return lock.Unlock
}
