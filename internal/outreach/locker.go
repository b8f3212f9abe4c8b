package outreach

import (
	"context"
	"sync"
)

// Locker guarantees at most one in-flight session per member.
type Locker interface {
	// TryLock returns ok=false without blocking when the member is already locked.
	TryLock(ctx context.Context, memberID string) (unlock func(), ok bool, err error)
}

// MemLocker is a process-local Locker.
type MemLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemLocker creates an empty in-memory locker.
func NewMemLocker() *MemLocker {
	return &MemLocker{held: make(map[string]struct{})}
}

// TryLock implements Locker.
func (l *MemLocker) TryLock(_ context.Context, memberID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[memberID]; busy {
		return nil, false, nil
	}
	l.held[memberID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, memberID)
			l.mu.Unlock()
		})
	}, true, nil
}
