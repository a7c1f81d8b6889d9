package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cimillas/library-lending/internal/domain"
)

// lockTable hands out one exclusive lock per key. A lock is owned by a
// transaction and is reentrant for that owner.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem   chan struct{}
	owner *txState
	refs  int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*keyLock)}
}

func (lt *lockTable) entry(key string) *keyLock {
	l := lt.locks[key]
	if l == nil {
		l = &keyLock{sem: make(chan struct{}, 1)}
		lt.locks[key] = l
	}
	return l
}

func (lt *lockTable) acquire(ctx context.Context, key string, owner *txState, timeout time.Duration) error {
	lt.mu.Lock()
	l := lt.entry(key)
	if l.owner == owner {
		lt.mu.Unlock()
		return nil
	}
	l.refs++
	lt.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case l.sem <- struct{}{}:
		lt.mu.Lock()
		l.owner = owner
		lt.mu.Unlock()
		owner.held = append(owner.held, key)
		return nil
	case <-ctx.Done():
		lt.abandon(key, l)
		return ctx.Err()
	case <-expired:
		lt.abandon(key, l)
		return fmt.Errorf("%w: %s", domain.ErrLockTimeout, key)
	}
}

// tryAcquire takes the lock only if nobody else holds it.
func (lt *lockTable) tryAcquire(key string, owner *txState) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	l := lt.entry(key)
	if l.owner == owner {
		return true
	}
	select {
	case l.sem <- struct{}{}:
		l.owner = owner
		l.refs++
		owner.held = append(owner.held, key)
		return true
	default:
		if l.refs == 0 {
			delete(lt.locks, key)
		}
		return false
	}
}

func (lt *lockTable) release(key string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	l := lt.locks[key]
	if l == nil {
		return
	}
	l.owner = nil
	l.refs--
	if l.refs == 0 {
		delete(lt.locks, key)
	}
	<-l.sem
}

func (lt *lockTable) abandon(key string, l *keyLock) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(lt.locks, key)
	}
}
