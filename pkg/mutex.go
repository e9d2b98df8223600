package pkg

import "sync"

// HasLocker is implemented by values guarded by a single RWMutex,
// like the store and the server's user registry.
type HasLocker interface{ GetLocker() *sync.RWMutex }

// LockWrap runs f while holding the write lock.
func LockWrap(i HasLocker, f func()) {
	locker := i.GetLocker()
	locker.Lock()
	defer locker.Unlock()
	f()
}

// RLockWrap runs f while holding the read lock.
func RLockWrap(i HasLocker, f func()) {
	locker := i.GetLocker()
	locker.RLock()
	defer locker.RUnlock()
	f()
}
